package recorder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutObject struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutObject) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func readEntries(t *testing.T, data []byte) []Entry {
	t.Helper()
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	return entries
}

func TestTranscript_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	rec, err := New(Config{Dir: dir, Now: fixedNow})
	require.NoError(t, err)

	session := uuid.New()
	tr, err := rec.Open(session)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, session.String()+".jsonl"), tr.Path())

	tr.Record(ToTarget, json.RawMessage(`{"id":1,"method":"Runtime.enable"}`))
	tr.Record(ToDebugger, json.RawMessage(`{"id":1,"result":{}}`))
	assert.Equal(t, 2, tr.Len())
	require.NoError(t, tr.Close(context.Background()))

	data, err := os.ReadFile(tr.Path())
	require.NoError(t, err)
	entries := readEntries(t, data)
	require.Len(t, entries, 2)

	assert.Equal(t, ToTarget, entries[0].Direction)
	assert.Equal(t, session, entries[0].Session)
	assert.True(t, entries[0].Time.Equal(fixedNow()))
	assert.JSONEq(t, `{"id":1,"method":"Runtime.enable"}`, string(entries[0].Message))
	assert.Equal(t, ToDebugger, entries[1].Direction)
}

func TestTranscript_RecordAfterCloseIsDropped(t *testing.T) {
	rec, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	tr, err := rec.Open(uuid.New())
	require.NoError(t, err)

	require.NoError(t, tr.Close(context.Background()))
	tr.Record(ToTarget, json.RawMessage(`{}`))
	assert.Equal(t, 0, tr.Len())
	require.NoError(t, tr.Close(context.Background()), "Close is idempotent")
}

func TestTranscript_ConcurrentRecord(t *testing.T) {
	rec, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	tr, err := rec.Open(uuid.New())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Record(ToTarget, json.RawMessage(`{"method":"Page.enable"}`))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Close(context.Background()))

	data, err := os.ReadFile(tr.Path())
	require.NoError(t, err)
	assert.Len(t, readEntries(t, data), 400)
}

func TestTranscript_UploadsToS3(t *testing.T) {
	client := &fakePutObject{}
	rec, err := New(Config{
		Dir:      t.TempDir(),
		Uploader: NewS3Uploader(client, "bucket", "sessions"),
	})
	require.NoError(t, err)

	session := uuid.New()
	tr, err := rec.Open(session)
	require.NoError(t, err)
	tr.Record(ToTarget, json.RawMessage(`{"id":0,"method":"Browser.getVersion"}`))
	require.NoError(t, tr.Close(context.Background()))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "bucket", aws.ToString(in.Bucket))
	assert.Equal(t, "sessions/"+session.String()+".jsonl", aws.ToString(in.Key))
	assert.Equal(t, "application/x-ndjson", aws.ToString(in.ContentType))
	assert.Len(t, readEntries(t, client.bodies[0]), 1)

	_, err = os.Stat(tr.Path())
	assert.NoError(t, err, "transcripts in a directory are kept after upload")
}

func TestTranscript_TemporaryFileRemovedAfterUpload(t *testing.T) {
	client := &fakePutObject{}
	rec, err := New(Config{Uploader: NewS3Uploader(client, "bucket", "")})
	require.NoError(t, err)

	tr, err := rec.Open(uuid.New())
	require.NoError(t, err)
	tr.Record(ToDebugger, json.RawMessage(`{"method":"Runtime.executionContextCreated","params":{}}`))
	require.NoError(t, tr.Close(context.Background()))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, tr.Session().String()+".jsonl", aws.ToString(client.inputs[0].Key))
	_, err = os.Stat(tr.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestTranscript_UploadError(t *testing.T) {
	boom := errors.New("access denied")
	rec, err := New(Config{
		Dir:      t.TempDir(),
		Uploader: NewS3Uploader(&fakePutObject{err: boom}, "bucket", ""),
	})
	require.NoError(t, err)

	tr, err := rec.Open(uuid.New())
	require.NoError(t, err)
	err = tr.Close(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNew_RequiresDestination(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewS3Client_Region(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "eu-west-1")

	client, err := NewS3Client(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", client.Options().Region)

	client, err = NewS3Client(context.Background(), "us-east-2")
	require.NoError(t, err)
	assert.Equal(t, "us-east-2", client.Options().Region)
}
