package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sakif/mediahub/internal/apperror"
)

// fakeS3 is an in-memory bucket honouring If-None-Match: * on PutObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes int
}

var _ S3API = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++

	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, taken := f.objects[key]; taken {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
		}
	}
	f.objects[key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(time.Unix(1700000000, 0)),
		})
	}
	return out, nil
}

// =========================================================================
// S3 STORE TESTS
// =========================================================================

func TestS3Store_CreateAndOpen(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "bucket", "uploads/")
	ctx := context.Background()

	size, err := s.Create(ctx, "a.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
	if _, ok := fake.objects["uploads/a.txt"]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}
	assertContent(t, s, "a.txt", "hello")
}

func TestS3Store_CreateIsExclusive(t *testing.T) {
	s := NewS3Store(newFakeS3(), "bucket", "")
	ctx := context.Background()

	writeFile(t, s, "a.txt", "first")
	_, err := s.Create(ctx, "a.txt", strings.NewReader("second"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("Create error = %v, want ErrExists", err)
	}
	assertContent(t, s, "a.txt", "first")
}

func TestS3Store_CreateBuffersNonSeekableBodies(t *testing.T) {
	s := NewS3Store(newFakeS3(), "bucket", "")

	size, err := s.Create(context.Background(), "pipe.bin", io.MultiReader(strings.NewReader("ab"), strings.NewReader("cd")))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if size != 4 {
		t.Errorf("size = %d, want 4", size)
	}
	assertContent(t, s, "pipe.bin", "abcd")
}

func TestS3Store_SaveUniqueRenamesOnCollision(t *testing.T) {
	s := NewS3Store(newFakeS3(), "bucket", "")
	n := NewNamer(fixedClock)
	ctx := context.Background()

	first, _, err := n.SaveUnique(ctx, s, "a.txt", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("first SaveUnique: %v", err)
	}
	second, _, err := n.SaveUnique(ctx, s, "a.txt", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("second SaveUnique: %v", err)
	}

	if first != "a.txt" || second != "a - 1700000000.txt" {
		t.Fatalf("names = %q, %q", first, second)
	}
	assertContent(t, s, first, "one")
	assertContent(t, s, second, "two")
}

func TestS3Store_ListStripsPrefixAndSkipsNested(t *testing.T) {
	fake := newFakeS3()
	fake.objects["uploads/b.txt"] = []byte("bb")
	fake.objects["uploads/a.txt"] = []byte("a")
	fake.objects["uploads/deep/c.txt"] = []byte("c")
	fake.objects["other/d.txt"] = []byte("d")

	files, err := NewS3Store(fake, "bucket", "uploads").List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 || files[0].Name != "a.txt" || files[1].Name != "b.txt" {
		t.Fatalf("List = %+v", files)
	}
	if files[1].Size != 2 {
		t.Errorf("b.txt size = %d, want 2", files[1].Size)
	}
}

func TestS3Store_Exists(t *testing.T) {
	fake := newFakeS3()
	fake.objects["a.txt"] = []byte("x")
	s := NewS3Store(fake, "bucket", "")
	ctx := context.Background()

	if ok, err := s.Exists(ctx, "a.txt"); err != nil || !ok {
		t.Errorf("Exists(a.txt) = (%v, %v)", ok, err)
	}
	if ok, err := s.Exists(ctx, "b.txt"); err != nil || ok {
		t.Errorf("Exists(b.txt) = (%v, %v)", ok, err)
	}
}

func TestS3Store_OpenMissing(t *testing.T) {
	_, _, err := NewS3Store(newFakeS3(), "bucket", "").Open(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Open error = %v, want not found", err)
	}
}

func TestS3Store_RemoveMissingDoesNotDelete(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "bucket", "")

	if err := s.Remove(context.Background(), "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Remove error = %v, want not found", err)
	}
	if fake.deletes != 0 {
		t.Errorf("DeleteObject called %d times for a missing key", fake.deletes)
	}
}

func TestS3Store_Remove(t *testing.T) {
	fake := newFakeS3()
	fake.objects["p/a.txt"] = []byte("x")
	s := NewS3Store(fake, "bucket", "p")

	if err := s.Remove(context.Background(), "a.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := fake.objects["p/a.txt"]; ok {
		t.Error("object still present")
	}
}

func TestS3Store_RejectsInvalidNames(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Store(fake, "bucket", "")

	if _, err := s.Create(context.Background(), "../x", strings.NewReader("x")); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Create error = %v, want validation error", err)
	}
	if fake.puts != 0 {
		t.Error("PutObject called for an invalid name")
	}
}

func TestIsS3PreconditionFailed(t *testing.T) {
	if !isS3PreconditionFailed(&smithy.GenericAPIError{Code: "PreconditionFailed"}) {
		t.Error("PreconditionFailed not recognised")
	}
	if !isS3PreconditionFailed(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}) {
		t.Error("ConditionalRequestConflict not recognised")
	}
	if isS3PreconditionFailed(&smithy.GenericAPIError{Code: "AccessDenied"}) {
		t.Error("AccessDenied treated as a name collision")
	}
	if isS3PreconditionFailed(errors.New("boom")) {
		t.Error("plain error treated as a name collision")
	}
}
