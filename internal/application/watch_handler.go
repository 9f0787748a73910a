package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Watch uploads every coverage file written to opts.Dir until ctx is done.
// Each file becomes its own session of opts.Commit.
func (s *Service) Watch(ctx context.Context, opts WatchOptions, watcher FileWatcher, callback WatchCallback) error {
	if err := requireCommit(opts.Commit); err != nil {
		return err
	}
	if err := watcher.WatchDir(opts.Dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	s.log().Info("watching uploads", zap.String("dir", opts.Dir), zap.String("commit", opts.Commit))

	events := watcher.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if !isCoverageFile(path) {
				continue
			}
			upload := opts.UploadOptions
			upload.Files = []string{path}
			result, err := s.Upload(ctx, upload)
			if err != nil {
				s.log().Warn("watch upload failed", zap.String("path", path), zap.Error(err))
			}
			if callback != nil {
				callback(path, result, err)
			}
		}
	}
}
