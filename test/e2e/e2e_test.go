package e2e

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	memfsBin  string
	projRoot  string
	fuseReady bool
	testEnv   *E2ETestEnvironment
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	_, err := os.Stat("/dev/fuse")
	fuseReady = err == nil
	if !fuseReady {
		return m.Run() // every test skips
	}

	// Build MemFS binary once for all tests
	tmpBinDir, err := os.MkdirTemp("", "memfs-bin")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpBinDir) //nolint:errcheck

	memfsBin = filepath.Join(tmpBinDir, "memfs")

	// Determine project root
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot = filepath.Join(filepath.Dir(thisFile), "..", "..")

	// Build with debug symbols
	cmd := exec.Command("go", "build", "-o", memfsBin, "-gcflags=all=-N -l", "./cmd")
	cmd.Dir = projRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	// Create shared test environment
	testEnv, err = NewE2ETestEnvironment(memfsBin)
	if err != nil {
		panic(err)
	}
	defer testEnv.Close()

	return m.Run()
}

func requireFuse(t *testing.T) {
	t.Helper()
	if !fuseReady {
		t.Skip("FUSE is not available")
	}
}

func TestE2EMountAndRead(t *testing.T) {
	requireFuse(t)
	textFile := NewTestFile("/simple-text").
		WithTextContent("Hello, MemFS! This is a simple test file.").
		Build()

	memfs := testEnv.StartMemFSWithFiles(t, []*TestFileSpec{textFile}, `[{
		"type": "file",
		"path": "test.txt",
		"sources": [{"type": "http", "url": "%s/simple-text"}]
	}]`)
	defer memfs.Stop()

	data, err := os.ReadFile(filepath.Join(memfs.MountDir, "test.txt"))
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}

	expected := "Hello, MemFS! This is a simple test file."
	if string(data) != expected {
		t.Fatalf("content mismatch:\nexpected: %q\ngot:      %q", expected, string(data))
	}
}

func TestE2EMultipleFiles(t *testing.T) {
	requireFuse(t)
	files := []*TestFileSpec{
		NewTestFile("/binary-content").
			WithBinaryContent(512). // 512 bytes of binary data
			Build(),
	}

	memfs := testEnv.StartMemFSWithFiles(t, files, `
- type: dir
  path: data
  perms: 0o750
- type: file
  path: data/text.txt
  sources:
    - type: inline
      content: Text file content for testing.
- type: file
  path: data/bin/binary.bin
  sources:
    - type: http
      url: "%[1]s/binary-content"
`)
	defer memfs.Stop()

	textData, err := os.ReadFile(filepath.Join(memfs.MountDir, "data", "text.txt"))
	if err != nil {
		t.Fatalf("failed to read text file: %v", err)
	}
	if string(textData) != "Text file content for testing." {
		t.Fatalf("text content mismatch: got %q", string(textData))
	}

	binaryData, err := os.ReadFile(filepath.Join(memfs.MountDir, "data", "bin", "binary.bin"))
	if err != nil {
		t.Fatalf("failed to read binary file: %v", err)
	}
	if len(binaryData) != 512 {
		t.Fatalf("binary size mismatch: expected 512, got %d", len(binaryData))
	}
	for i, b := range binaryData {
		if expected := byte(i % 256); b != expected {
			t.Fatalf("binary content mismatch at offset %d: expected %d, got %d", i, expected, b)
		}
	}

	info, err := os.Stat(filepath.Join(memfs.MountDir, "data"))
	if err != nil {
		t.Fatalf("failed to stat dir: %v", err)
	}
	if !info.IsDir() || info.Mode().Perm() != 0o750 {
		t.Fatalf("unexpected dir mode: %v", info.Mode())
	}
}

func TestE2EHTTPErrors(t *testing.T) {
	requireFuse(t)
	errorFile := NewTestFile("/not-found").
		WithError(404).
		Build()

	memfs := testEnv.StartMemFSWithFiles(t, []*TestFileSpec{errorFile}, `[
		{"type": "file", "path": "missing.txt", "sources": [{"type": "http", "url": "%[1]s/not-found"}]},
		{"type": "file", "path": "fallback.txt", "sources": [
			{"type": "http", "url": "%[1]s/not-found"},
			{"type": "inline", "content": "fallback"}
		]}
	]`)
	defer memfs.Stop()

	if _, err := os.Stat(filepath.Join(memfs.MountDir, "missing.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected missing.txt to be absent, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(memfs.MountDir, "fallback.txt"))
	if err != nil {
		t.Fatalf("failed to read fallback file: %v", err)
	}
	if string(data) != "fallback" {
		t.Fatalf("fallback content mismatch: got %q", string(data))
	}
}

func TestE2EPosixOperations(t *testing.T) {
	requireFuse(t)
	memfs := testEnv.StartMemFSWithFiles(t, nil, `[{"type": "file", "path": "seed", "sources": [{"type": "inline", "content": "seed"}]}]`)
	defer memfs.Stop()
	mnt := memfs.MountDir

	// write, append, truncate
	p := filepath.Join(mnt, "notes.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString(" world"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()
	if err := os.Truncate(p, 5); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if data, _ := os.ReadFile(p); string(data) != "hello" {
		t.Fatalf("content after truncate: %q", string(data))
	}

	// hard link shares content
	link := filepath.Join(mnt, "notes.link")
	if err := os.Link(p, link); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := os.WriteFile(link, []byte("HELLO"), 0o644); err != nil {
		t.Fatalf("write through link: %v", err)
	}
	if data, _ := os.ReadFile(p); string(data) != "HELLO" {
		t.Fatalf("hard link does not share content: %q", string(data))
	}

	// directory rename carries the subtree
	if err := os.MkdirAll(filepath.Join(mnt, "a", "b"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Rename(p, filepath.Join(mnt, "a", "b", "notes.txt")); err != nil {
		t.Fatalf("rename file: %v", err)
	}
	if err := os.Rename(filepath.Join(mnt, "a"), filepath.Join(mnt, "z")); err != nil {
		t.Fatalf("rename dir: %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(mnt, "z", "b", "notes.txt")); string(data) != "HELLO" {
		t.Fatalf("content after rename: %q", string(data))
	}

	// rmdir refuses non-empty directories
	if err := os.Remove(filepath.Join(mnt, "z", "b")); err == nil {
		t.Fatalf("expected rmdir of non-empty dir to fail")
	}
	if err := os.RemoveAll(filepath.Join(mnt, "z")); err != nil {
		t.Fatalf("remove all: %v", err)
	}

	entries, err := os.ReadDir(mnt)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if strings.Join(names, ",") != "notes.link,seed" {
		t.Fatalf("unexpected root entries: %v", names)
	}
}

// E2ETestEnvironment manages shared resources for all e2e tests
type E2ETestEnvironment struct {
	MemFSBin string
	BaseDir  string
}

// TestFileSpec defines a test file's content and behavior
type TestFileSpec struct {
	path        string
	content     []byte
	contentType string
	delay       time.Duration
	errorCode   int // 0 = success, 404, 500, etc.
}

// TestFileBuilder provides a fluent API for creating test files
type TestFileBuilder struct {
	spec TestFileSpec
}

// MemFSInstance represents a running MemFS process for testing
type MemFSInstance struct {
	cmd      *exec.Cmd
	MountDir string
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	cleanup  func()
}

// NewTestFile creates a new test file builder with the given path
func NewTestFile(path string) *TestFileBuilder {
	return &TestFileBuilder{
		spec: TestFileSpec{
			path:        path,
			contentType: "text/plain",
		},
	}
}

// WithTextContent sets text content and appropriate content type
func (b *TestFileBuilder) WithTextContent(content string) *TestFileBuilder {
	b.spec.content = []byte(content)
	b.spec.contentType = "text/plain"
	return b
}

// WithBinaryContent generates binary content of the specified size
func (b *TestFileBuilder) WithBinaryContent(size int) *TestFileBuilder {
	b.spec.content = make([]byte, size)
	for i := range b.spec.content {
		b.spec.content[i] = byte(i % 256)
	}
	b.spec.contentType = "application/octet-stream"
	return b
}

// WithDelay adds artificial delay to responses
func (b *TestFileBuilder) WithDelay(delay time.Duration) *TestFileBuilder {
	b.spec.delay = delay
	return b
}

// WithError makes the file return an HTTP error status
func (b *TestFileBuilder) WithError(statusCode int) *TestFileBuilder {
	b.spec.errorCode = statusCode
	return b
}

// Build creates the final TestFileSpec
func (b *TestFileBuilder) Build() *TestFileSpec {
	return &b.spec
}

// NewE2ETestEnvironment creates a shared test environment
func NewE2ETestEnvironment(memfsBinary string) (*E2ETestEnvironment, error) {
	baseDir, err := os.MkdirTemp("", "memfs-e2e-tests")
	if err != nil {
		return nil, err
	}
	return &E2ETestEnvironment{
		MemFSBin: memfsBinary,
		BaseDir:  baseDir,
	}, nil
}

// Close cleans up the test environment
func (env *E2ETestEnvironment) Close() {
	if env.BaseDir != "" {
		_ = os.RemoveAll(env.BaseDir) // Best effort cleanup
	}
}

// handleMockRequest handles HTTP requests for mock files
func handleMockRequest(w http.ResponseWriter, r *http.Request, file *TestFileSpec) {
	if file.delay > 0 {
		time.Sleep(file.delay)
	}

	if file.errorCode != 0 {
		http.Error(w, fmt.Sprintf("Mock error %d", file.errorCode), file.errorCode)
		return
	}

	w.Header().Set("Content-Type", file.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.content)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(file.content); err != nil {
		panic(fmt.Sprintf("Failed to write mock response: %v", err))
	}
}

// StartMemFSWithFiles serves files over a test HTTP server, writes the
// manifest template with that server's URL and mounts a MemFS seeded from it
func (env *E2ETestEnvironment) StartMemFSWithFiles(t *testing.T, files []*TestFileSpec, manifestTemplate string) *MemFSInstance {
	testMux := http.NewServeMux()
	for _, file := range files {
		testMux.HandleFunc(file.path, func(w http.ResponseWriter, r *http.Request) {
			handleMockRequest(w, r, file)
		})
	}
	testServer := httptest.NewServer(testMux)

	// Create test-specific directories
	testID := strings.ReplaceAll(t.Name(), "/", "_")
	mountDir := filepath.Join(env.BaseDir, fmt.Sprintf("mount-%s", testID))
	nodesDir := filepath.Join(env.BaseDir, fmt.Sprintf("nodes-%s", testID))

	if err := os.MkdirAll(mountDir, 0o755); err != nil {
		t.Fatalf("Failed to create mount dir: %v", err)
	}
	if err := os.MkdirAll(nodesDir, 0o755); err != nil {
		t.Fatalf("Failed to create nodes dir: %v", err)
	}

	manifest := manifestTemplate
	if strings.Contains(manifest, "%") {
		manifest = fmt.Sprintf(manifestTemplate, testServer.URL)
	}
	nodesFile := filepath.Join(nodesDir, "nodes.yaml")
	if err := os.WriteFile(nodesFile, []byte(manifest), 0o644); err != nil {
		t.Fatalf("Failed to write nodes file: %v", err)
	}

	cmd := exec.Command(env.MemFSBin, "--nodes", nodesFile, "-v", "4", mountDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start MemFS: %v", err)
	}

	instance := &MemFSInstance{
		cmd:      cmd,
		MountDir: mountDir,
		stdout:   &stdout,
		stderr:   &stderr,
		cleanup: func() {
			testServer.Close()
			_ = os.RemoveAll(mountDir) // Best effort cleanup
			_ = os.RemoveAll(nodesDir) // Best effort cleanup
		},
	}

	if err := instance.WaitForMount(15 * time.Second); err != nil {
		_, stderrLog := instance.GetLogs()
		instance.Stop()
		t.Fatalf("MemFS mount failed: %v\n%s", err, stderrLog)
	}

	return instance
}

// Stop gracefully stops the MemFS instance
func (w *MemFSInstance) Stop() {
	if w.cmd != nil && w.cmd.Process != nil {
		_ = w.cmd.Process.Signal(os.Interrupt) // Process may have already exited

		done := make(chan error, 1)
		go func() {
			done <- w.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = w.cmd.Process.Kill() // Process may have already exited
			<-done
		}
	}

	if w.cleanup != nil {
		w.cleanup()
	}
}

// WaitForMount waits until the seeded tree is visible through the mount
func (w *MemFSInstance) WaitForMount(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if files, err := os.ReadDir(w.MountDir); err == nil && len(files) > 0 {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("timeout waiting for MemFS mount to be ready")
}

// GetLogs returns the stdout and stderr from the MemFS process
func (w *MemFSInstance) GetLogs() (stdout, stderr string) {
	return w.stdout.String(), w.stderr.String()
}
