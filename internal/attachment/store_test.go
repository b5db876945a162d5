package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeObjects struct {
	objects      map[string][]byte
	contentTypes map[string]string
	putErr       error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = body
	f.contentTypes[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

// fakePresigner issues URLs that fakeObjects can resolve.
type fakePresigner struct {
	signed int
	err    error
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.signed++
	u := fmt.Sprintf("https://%s.s3.test/%s?X-Amz-Expires=%d&sig=%d",
		*in.Bucket, url.PathEscape(*in.Key), int(opts.Expires.Seconds()), p.signed)
	return &v4.PresignedHTTPRequest{URL: u, Method: "GET"}, nil
}

func (f *fakeObjects) resolve(t *testing.T, signedURL string) []byte {
	t.Helper()
	u, err := url.Parse(signedURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	key, _ := url.PathUnescape(strings.TrimPrefix(u.EscapedPath(), "/"))
	body, ok := f.objects[key]
	if !ok {
		t.Fatalf("no object behind %s", signedURL)
	}
	return body
}

func TestUploadSameNameLastWriteWins(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	presigner := &fakePresigner{}
	store := NewStore(objects, presigner, "resumes")

	if err := store.Upload(ctx, "me@example.com", "resume.pdf", []byte("first"), "application/pdf"); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if err := store.Upload(ctx, "me@example.com", "resume.pdf", []byte("second"), "application/pdf"); err != nil {
		t.Fatalf("second upload: %v", err)
	}

	link, err := store.SignedDownloadURL(ctx, "me@example.com", "resume.pdf", time.Hour)
	if err != nil {
		t.Fatalf("SignedDownloadURL: %v", err)
	}
	if got := string(objects.resolve(t, link)); got != "second" {
		t.Fatalf("signed url resolved to %q, want second upload", got)
	}
	if !strings.Contains(link, "X-Amz-Expires=3600") {
		t.Fatalf("link %s does not carry a one hour expiry", link)
	}
	if len(objects.objects) != 1 {
		t.Fatalf("stored %d objects, want 1", len(objects.objects))
	}
}

func TestSignedDownloadURLIsFreshEachCall(t *testing.T) {
	store := NewStore(newFakeObjects(), &fakePresigner{}, "resumes")
	a, _ := store.SignedDownloadURL(context.Background(), "me@example.com", "cv.pdf", time.Hour)
	b, _ := store.SignedDownloadURL(context.Background(), "me@example.com", "cv.pdf", time.Hour)
	if a == b {
		t.Fatal("expected a newly signed url on every call")
	}
}

func TestUploadKeysArePerUser(t *testing.T) {
	objects := newFakeObjects()
	store := NewStore(objects, &fakePresigner{}, "resumes")

	_ = store.Upload(context.Background(), "a@example.com", "cv.pdf", []byte("a"), "application/pdf")
	_ = store.Upload(context.Background(), "b@example.com", "../../cv.pdf", []byte("b"), "application/pdf")

	if string(objects.objects["a@example.com/cv.pdf"]) != "a" || string(objects.objects["b@example.com/cv.pdf"]) != "b" {
		t.Fatalf("unexpected keys: %v", objects.objects)
	}
}

func TestUploadDetectsMissingContentType(t *testing.T) {
	objects := newFakeObjects()
	store := NewStore(objects, &fakePresigner{}, "resumes")

	pdf := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
	if err := store.Upload(context.Background(), "me@example.com", "cv.pdf", pdf, ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ct := objects.contentTypes["me@example.com/cv.pdf"]; ct != "application/pdf" {
		t.Fatalf("content type = %q, want application/pdf", ct)
	}
}

func TestNoneIsNeverAStorageKey(t *testing.T) {
	store := NewStore(newFakeObjects(), &fakePresigner{}, "resumes")

	if _, err := store.SignedDownloadURL(context.Background(), "me@example.com", "None", time.Hour); !errors.Is(err, ErrNoAttachment) {
		t.Fatalf("SignedDownloadURL(None) = %v, want ErrNoAttachment", err)
	}
	if err := store.Upload(context.Background(), "me@example.com", "", []byte("x"), ""); !errors.Is(err, ErrNoAttachment) {
		t.Fatalf("Upload(empty name) = %v, want ErrNoAttachment", err)
	}
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("403")
	store := NewStore(objects, &fakePresigner{err: errors.New("no creds")}, "resumes")

	if err := store.Upload(context.Background(), "me@example.com", "cv.pdf", []byte("x"), "application/pdf"); !errors.Is(err, ErrStorage) {
		t.Fatalf("Upload error = %v, want ErrStorage", err)
	}
	if _, err := store.SignedDownloadURL(context.Background(), "me@example.com", "cv.pdf", time.Hour); !errors.Is(err, ErrStorage) {
		t.Fatalf("presign error = %v, want ErrStorage", err)
	}
}
