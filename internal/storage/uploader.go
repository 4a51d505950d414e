package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robby3000/luxicle/internal/apperr"
)

// DefaultBucketName is the bucket user images live in.
const DefaultBucketName = "user-content"

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 5 << 20

// Kind selects the folder an image is stored under.
type Kind string

const (
	KindAvatar  Kind = "avatars"
	KindCover   Kind = "covers"
	KindContent Kind = "content"
)

// File is an image to upload. Size may be -1 when unknown; the body is then
// capped at MaxImageSize while reading.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (f File) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required.Error("file name is required")),
		validation.Field(&f.ContentType,
			validation.Required.Error("content type is required"),
			validation.By(func(any) error {
				if !strings.HasPrefix(f.ContentType, "image/") {
					return validation.NewError("validation_image_type", "file must be an image")
				}
				return nil
			})),
		validation.Field(&f.Size, validation.Max(int64(MaxImageSize)).Error("image must be smaller than 5MB")),
		validation.Field(&f.Body, validation.NotNil.Error("file body is required")),
	)
}

// Uploader names and writes user images and deletes them by public URL.
type Uploader struct {
	bucket Bucket
	log    *zap.SugaredLogger
	newID  func() string
	pathRe *regexp.Regexp
}

type Option func(*Uploader)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(u *Uploader) {
		if log != nil {
			u.log = log
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(u *Uploader) {
		if fn != nil {
			u.newID = fn
		}
	}
}

func NewUploader(bucket Bucket, opts ...Option) *Uploader {
	u := &Uploader{
		bucket: bucket,
		log:    zap.NewNop().Sugar(),
		newID:  uuid.NewString,
		pathRe: regexp.MustCompile("/" + regexp.QuoteMeta(bucket.Name()) + "/(.*)"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Uploader) UploadAvatar(ctx context.Context, userID string, f File) (string, error) {
	return u.Upload(ctx, KindAvatar, userID, f)
}

func (u *Uploader) UploadCover(ctx context.Context, userID string, f File) (string, error) {
	return u.Upload(ctx, KindCover, userID, f)
}

func (u *Uploader) UploadContent(ctx context.Context, userID string, f File) (string, error) {
	return u.Upload(ctx, KindContent, userID, f)
}

// Upload stores f as <kind>/<userID>-<uuid>.<ext> and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, kind Kind, userID string, f File) (string, error) {
	if userID == "" {
		return "", apperr.NewValidation("user id is required")
	}
	if err := f.Validate(); err != nil {
		return "", apperr.WrapValidation(err)
	}

	objectPath := ObjectPath(kind, userID, u.newID(), f.Name)
	body := &limitedReader{r: f.Body, left: MaxImageSize}
	if err := u.bucket.Upload(ctx, objectPath, body, f.ContentType); err != nil {
		if body.exceeded {
			return "", apperr.NewValidation("image must be smaller than 5MB")
		}
		return "", err
	}
	if body.exceeded {
		// The bucket consumed a truncated body; drop it.
		_ = u.bucket.Delete(ctx, objectPath)
		return "", apperr.NewValidation("image must be smaller than 5MB")
	}

	url := u.bucket.PublicURL(objectPath)
	u.log.Infow("image uploaded", "kind", kind, "user_id", userID, "path", objectPath)
	return url, nil
}

// ObjectPath builds the object name for an upload, keeping the original extension.
func ObjectPath(kind Kind, userID, id, filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s-%s.%s", kind, userID, id, strings.ToLower(ext))
}

// PathFromURL extracts the object path from a public URL of this bucket.
func (u *Uploader) PathFromURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", apperr.NewValidation("invalid file URL")
	}
	m := u.pathRe.FindStringSubmatch(parsed.Path)
	if m == nil || m[1] == "" {
		return "", apperr.NewValidation("invalid file URL format")
	}
	return m[1], nil
}

// DeleteByURL removes the object a public URL points at.
func (u *Uploader) DeleteByURL(ctx context.Context, raw string) error {
	objectPath, err := u.PathFromURL(raw)
	if err != nil {
		return err
	}
	if err := u.bucket.Delete(ctx, objectPath); err != nil {
		return err
	}
	u.log.Infow("image deleted", "path", objectPath)
	return nil
}

// OwnedPath returns the object path behind raw when it is this bucket's public
// URL for an object of kind uploaded by userID.
func (u *Uploader) OwnedPath(kind Kind, userID, raw string) (string, bool) {
	if userID == "" {
		return "", false
	}
	objectPath, err := u.PathFromURL(raw)
	if err != nil || u.bucket.PublicURL(objectPath) != raw {
		return "", false
	}
	name, ok := strings.CutPrefix(objectPath, string(kind)+"/"+userID+"-")
	if !ok || strings.Contains(name, "/") {
		return "", false
	}
	if _, err := uuid.Parse(strings.TrimSuffix(name, path.Ext(name))); err != nil {
		return "", false
	}
	return objectPath, true
}

// DeleteOwned removes the object behind raw only when userID uploaded it as kind.
func (u *Uploader) DeleteOwned(ctx context.Context, kind Kind, userID, raw string) error {
	objectPath, ok := u.OwnedPath(kind, userID, raw)
	if !ok {
		return apperr.NewForbidden("file does not belong to the caller")
	}
	if err := u.bucket.Delete(ctx, objectPath); err != nil {
		return err
	}
	u.log.Infow("image deleted", "path", objectPath, "user_id", userID)
	return nil
}

// limitedReader reads at most left bytes and records whether the source had more.
type limitedReader struct {
	r        io.Reader
	left     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.left <= 0 {
		var extra [1]byte
		n, _ := l.r.Read(extra[:])
		if n > 0 {
			l.exceeded = true
			return 0, fmt.Errorf("upload exceeds %d bytes", MaxImageSize)
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.left {
		p = p[:l.left]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	return n, err
}
