package dms

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

// MaxParts is the highest part number a multipart upload accepts.
const MaxParts = 10000

// UploadRequest describes a file to upload below ParentID. RelativePath may
// contain folders, which are created when missing.
type UploadRequest struct {
	ParentID     string
	RelativePath string
	ContentType  string
	Size         int64
}

// UploadResult is the node and version an upload produced.
type UploadResult struct {
	Node    *Node
	Version *Version
	// Created is false when the upload became a new version of an existing file.
	Created bool
	// Folders are the folders created for the relative path.
	Folders []*Node
}

// UploadPlan says how a client should send a file of a given size.
type UploadPlan struct {
	Multipart bool
	PartSize  int64
	PartCount int
}

var extensionCategories = map[string]string{}

func init() {
	for category, exts := range map[string][]string{
		"images":    {"jpg", "jpeg", "png", "gif", "bmp", "svg", "webp", "tiff", "heic"},
		"documents": {"pdf", "doc", "docx", "txt", "rtf", "odt", "xls", "xlsx", "ppt", "pptx", "csv", "md"},
		"videos":    {"mp4", "avi", "mov", "mkv", "wmv", "flv", "webm"},
		"audio":     {"mp3", "wav", "flac", "aac", "ogg", "m4a"},
		"archives":  {"zip", "rar", "7z", "tar", "gz", "bz2"},
		"code":      {"py", "js", "ts", "html", "css", "java", "c", "cpp", "go", "rs", "json", "xml", "yaml", "yml"},
	} {
		for _, ext := range exts {
			extensionCategories[ext] = category
		}
	}
}

// objectKey builds "uploads/<category>/<id>/<name>".
func objectKey(id, name string) string {
	category, ok := extensionCategories[splitExtension(name)]
	if !ok {
		category = "others"
	}
	return path.Join("uploads", category, id, name)
}

// splitUploadPath splits a relative upload path into folder names and the
// file name. The file name must carry an extension.
func splitUploadPath(op, rel string) ([]string, string, error) {
	rel = strings.Trim(strings.ReplaceAll(rel, "\\", "/"), "/")
	if rel == "" {
		return nil, "", invalidState(op, "relative_path", "path is empty")
	}
	parts := strings.Split(rel, "/")
	for _, p := range parts {
		if err := validateName(op, p); err != nil {
			return nil, "", &Error{Kind: ErrInvalidState, Op: op, Field: "relative_path", Msg: fmt.Sprintf("bad component %q", p)}
		}
	}
	name := parts[len(parts)-1]
	if splitExtension(name) == "" {
		return nil, "", invalidState(op, "relative_path", "file name has no extension")
	}
	return parts[:len(parts)-1], name, nil
}

// PlanUpload returns the upload strategy for a file of size bytes.
func (s *Service) PlanUpload(size int64) UploadPlan {
	if size < s.opts.MultipartThreshold {
		return UploadPlan{PartSize: size, PartCount: 1}
	}
	partSize := s.opts.PartSize
	count := int((size + partSize - 1) / partSize)
	for count > MaxParts {
		partSize *= 2
		count = int((size + partSize - 1) / partSize)
	}
	return UploadPlan{Multipart: true, PartSize: partSize, PartCount: count}
}

func (s *Service) checkUploadTarget(ctx context.Context, op, actor, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, err := liveNode(ctx, s.db, op, "parent_id", parentID)
	if err != nil {
		return err
	}
	if !parent.IsFolder() {
		return invalidState(op, "parent_id", "parent is not a folder")
	}
	return s.authorize(ctx, s.db, op, parent, actor, LevelEditor)
}

// BeginUpload starts a multipart upload and records its session.
func (s *Service) BeginUpload(ctx context.Context, actor string, req UploadRequest) (sess *UploadSession, err error) {
	const op = "BeginUpload"
	defer s.observe(op, time.Now(), &err)

	if s.sessions == nil {
		return nil, invalidState(op, "sessions", "multipart uploads are not configured")
	}
	dirs, name, err := splitUploadPath(op, req.RelativePath)
	if err != nil {
		return nil, err
	}
	if req.Size < 0 {
		return nil, invalidState(op, "size", "size is negative")
	}
	if err := s.checkUploadTarget(ctx, op, actor, req.ParentID); err != nil {
		return nil, err
	}

	key := objectKey(s.ids.New(), name)
	var uploadID string
	err = s.callGateway(op, "create_multipart_upload", StorageRef{Key: key}, func() error {
		var err error
		uploadID, err = s.gateway.BeginMultipart(ctx, key, req.ContentType)
		return err
	})
	if err != nil {
		return nil, err
	}

	sess = &UploadSession{
		UploadID:    uploadID,
		Key:         key,
		ActorID:     actor,
		ParentID:    req.ParentID,
		Dirs:        dirs,
		FileName:    name,
		ContentType: req.ContentType,
		Size:        req.Size,
		PartSize:    s.PlanUpload(req.Size).PartSize,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		if abortErr := s.gateway.AbortMultipart(context.WithoutCancel(ctx), key, uploadID); abortErr != nil {
			s.logger.Warn("aborting unsaved upload", "upload_id", uploadID, "key", key, "error", abortErr)
		}
		return nil, fmt.Errorf("saving upload session: %w", err)
	}

	s.logger.Info("upload started", "upload_id", uploadID, "key", key, "actor", actor)
	return sess, nil
}

func (s *Service) session(ctx context.Context, op, actor, key, uploadID string) (*UploadSession, error) {
	if s.sessions == nil {
		return nil, notFound(op, "upload_id", uploadID)
	}
	sess, err := s.sessions.Get(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("loading upload session: %w", err)
	}
	if sess == nil || sess.Key != key {
		return nil, notFound(op, "upload_id", uploadID)
	}
	if sess.ActorID != actor {
		return nil, denied(op, actor, "upload belongs to another principal")
	}
	return sess, nil
}

// PartURL returns a presigned URL the client uploads one part to.
func (s *Service) PartURL(ctx context.Context, actor, key, uploadID string, partNumber int) (string, error) {
	const op = "PartURL"
	if partNumber < 1 || partNumber > MaxParts {
		return "", invalidState(op, "part_number", fmt.Sprintf("part number must be between 1 and %d", MaxParts))
	}
	if _, err := s.session(ctx, op, actor, key, uploadID); err != nil {
		return "", err
	}

	var url string
	err := s.callGateway(op, "presign_upload_part", StorageRef{Key: key}, func() error {
		var err error
		url, err = s.gateway.PartURL(ctx, key, uploadID, partNumber, s.opts.PartURLExpiry)
		return err
	})
	return url, err
}

// CompleteUpload assembles the uploaded parts and records the result as a new
// file, or as a new version of the live file already at that path.
func (s *Service) CompleteUpload(ctx context.Context, actor, key, uploadID string, parts []CompletedPart) (res *UploadResult, err error) {
	const op = "CompleteUpload"
	defer s.observe(op, time.Now(), &err)

	sess, err := s.session(ctx, op, actor, key, uploadID)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, invalidState(op, "parts", "no parts given")
	}
	sorted := append([]CompletedPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	for i, p := range sorted {
		if p.Number < 1 || p.Number > MaxParts || (i > 0 && sorted[i-1].Number == p.Number) {
			return nil, invalidState(op, "parts", fmt.Sprintf("bad part number %d", p.Number))
		}
	}

	ref := StorageRef{Key: key}
	err = s.callGateway(op, "complete_multipart_upload", ref, func() error {
		var err error
		ref.VersionID, err = s.gateway.CompleteMultipart(ctx, key, uploadID, sorted)
		return err
	})
	if err != nil {
		return nil, err
	}

	res, err = s.attachUpload(ctx, op, actor, sess.ParentID, sess.Dirs, sess.FileName, sess.ContentType, sess.Size, ref)
	if err != nil {
		s.logger.Error("upload completed but not recorded", "key", key, "version", ref.VersionID, "error", err)
		s.deleteObjects(context.WithoutCancel(ctx), op, []StorageRef{ref})
	}
	// The multipart upload is consumed either way, so the session cannot be
	// retried.
	if dropErr := s.sessions.Delete(context.WithoutCancel(ctx), uploadID); dropErr != nil {
		s.logger.Warn("dropping upload session", "upload_id", uploadID, "error", dropErr)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AbortUpload cancels a multipart upload and releases its parts.
func (s *Service) AbortUpload(ctx context.Context, actor, key, uploadID string) (err error) {
	const op = "AbortUpload"
	defer s.observe(op, time.Now(), &err)

	if _, err := s.session(ctx, op, actor, key, uploadID); err != nil {
		return err
	}
	err = s.callGateway(op, "abort_multipart_upload", StorageRef{Key: key}, func() error {
		return s.gateway.AbortMultipart(ctx, key, uploadID)
	})
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, uploadID); err != nil {
		return fmt.Errorf("dropping upload session: %w", err)
	}
	s.logger.Info("upload aborted", "upload_id", uploadID, "actor", actor)
	return nil
}

// Upload stores r in one request and records it like CompleteUpload does.
func (s *Service) Upload(ctx context.Context, actor string, req UploadRequest, r io.Reader) (res *UploadResult, err error) {
	const op = "Upload"
	defer s.observe(op, time.Now(), &err)

	dirs, name, err := splitUploadPath(op, req.RelativePath)
	if err != nil {
		return nil, err
	}
	if err := s.checkUploadTarget(ctx, op, actor, req.ParentID); err != nil {
		return nil, err
	}

	ref := StorageRef{Key: objectKey(s.ids.New(), name)}
	err = s.callGateway(op, "put_object", ref, func() error {
		var err error
		ref.VersionID, err = s.gateway.Put(ctx, ref.Key, r, req.Size, req.ContentType)
		return err
	})
	if err != nil {
		return nil, err
	}

	res, err = s.attachUpload(ctx, op, actor, req.ParentID, dirs, name, req.ContentType, req.Size, ref)
	if err != nil {
		s.deleteObjects(context.WithoutCancel(ctx), op, []StorageRef{ref})
		return nil, err
	}
	return res, nil
}

func (s *Service) attachUpload(ctx context.Context, op, actor, parentID string, dirs []string, name, contentType string, size int64, ref StorageRef) (*UploadResult, error) {
	snapshot := map[string]any{
		"name":         name,
		"size":         size,
		"content_type": contentType,
		"extension":    splitExtension(name),
	}

	res := &UploadResult{}
	err := s.db.InTx(ctx, func(st Store) error {
		folderID, created, err := s.ensurePath(ctx, st, op, actor, parentID, dirs)
		if err != nil {
			return err
		}
		res.Folders = created

		owner := actor
		if folderID != "" {
			folder, err := liveNode(ctx, st, op, "parent_id", folderID)
			if err != nil {
				return err
			}
			owner = folder.OwnerID
		}
		existing, err := st.FindLiveSibling(ctx, owner, folderID, name, KindFile)
		if err != nil {
			return fmt.Errorf("looking up %q: %w", name, err)
		}

		n := existing
		if n != nil {
			if err := s.authorize(ctx, st, op, n, actor, LevelEditor); err != nil {
				return err
			}
		} else {
			if n, err = s.createNode(ctx, st, op, actor, folderID, name, KindFile); err != nil {
				return err
			}
			res.Created = true
		}

		n.Size = size
		n.ContentType = contentType
		n.Extension = splitExtension(name)
		applySnapshot(n, snapshot)
		v, err := s.appendVersion(ctx, st, n, actor, versionInput{
			Action:   ActionUpload,
			Storage:  ref,
			Metadata: copyMetadata(snapshot),
		})
		if err != nil {
			return err
		}
		res.Node, res.Version = n, v
		return s.logAction(ctx, st, n.ID, actor, LogUploaded, fmt.Sprintf("v%d", v.Number))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("upload recorded", "node_id", res.Node.ID, "version", res.Version.Number, "created", res.Created, "actor", actor)
	return res, nil
}
