package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"dms/internal/dms"
	"dms/internal/fs"
	"dms/internal/gateway"
)

// UploadFile uploads the local file at localPath to relPath below parentID.
// Files at or above the multipart threshold are sent in parts through the
// gateway's part URLs. An empty contentType is detected from the content.
func (a *DMSApp) UploadFile(ctx context.Context, actor, parentID, localPath, relPath, contentType string) (*dms.UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", localPath)
	}

	if contentType == "" {
		mt, err := mimetype.DetectFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("detecting content type of %s: %w", localPath, err)
		}
		contentType = mt.String()
	}

	req := dms.UploadRequest{
		ParentID:     parentID,
		RelativePath: relPath,
		ContentType:  contentType,
		Size:         info.Size(),
	}
	plan := a.service.PlanUpload(req.Size)
	if !plan.Multipart {
		return a.service.Upload(ctx, actor, req, f)
	}
	return a.uploadParts(ctx, actor, req, plan, f)
}

func (a *DMSApp) uploadParts(ctx context.Context, actor string, req dms.UploadRequest, plan dms.UploadPlan, r io.ReaderAt) (*dms.UploadResult, error) {
	pw, ok := a.gateway.(gateway.PartWriter)
	if !ok {
		return nil, fmt.Errorf("gateway %T cannot write parts", a.gateway)
	}

	sess, err := a.service.BeginUpload(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	parts := make([]dms.CompletedPart, 0, plan.PartCount)
	for i := 0; i < plan.PartCount; i++ {
		number := i + 1
		offset := int64(i) * plan.PartSize
		size := min(plan.PartSize, req.Size-offset)

		etag, err := a.uploadPart(ctx, pw, actor, sess, number, io.NewSectionReader(r, offset, size), size)
		if err != nil {
			if abortErr := a.service.AbortUpload(context.WithoutCancel(ctx), actor, sess.Key, sess.UploadID); abortErr != nil {
				a.logger.Warn("aborting upload", "upload_id", sess.UploadID, "error", abortErr)
			}
			return nil, fmt.Errorf("uploading part %d of %d: %w", number, plan.PartCount, err)
		}
		parts = append(parts, dms.CompletedPart{Number: number, ETag: etag})
		a.logger.Debug("part uploaded", "upload_id", sess.UploadID, "part", number, "size", size)
	}

	return a.service.CompleteUpload(ctx, actor, sess.Key, sess.UploadID, parts)
}

func (a *DMSApp) uploadPart(ctx context.Context, pw gateway.PartWriter, actor string, sess *dms.UploadSession, number int, r io.Reader, size int64) (string, error) {
	url, err := a.service.PartURL(ctx, actor, sess.Key, sess.UploadID, number)
	if err != nil {
		return "", err
	}
	return pw.WritePart(ctx, url, r, size)
}

// UploadDir uploads every file below the local directory localDir into a
// folder of the same name under parentID, skipping what the configured and
// .dmsignore patterns exclude. Files are uploaded one at a time and each
// failure is reported against the file's relative path.
func (a *DMSApp) UploadDir(ctx context.Context, actor, parentID, localDir string) ([]dms.ItemResult, error) {
	files, err := fs.NewScanner(a.cfg.Upload.IgnorePatterns).Scan(localDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", localDir, err)
	}

	results := make([]dms.ItemResult, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			results = append(results, dms.ItemResult{ID: f.RelPath, Err: ctx.Err()})
			continue
		}
		_, err := a.UploadFile(ctx, actor, parentID, f.Path, f.RelPath, "")
		results = append(results, dms.ItemResult{ID: f.RelPath, Err: err})
		if err != nil {
			a.logger.Warn("directory upload item failed", "path", f.RelPath, "error", err)
		}
	}
	a.logger.Info("directory uploaded", "dir", localDir, "files", len(files))
	return results, nil
}
