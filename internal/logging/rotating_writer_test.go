package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRotatingFileWriter(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	if err := os.WriteFile(logFile, []byte("existing\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	writer, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	if writer.size != int64(len("existing\n")) {
		t.Errorf("Size = %d, want size of existing file", writer.size)
	}
}

func TestRotatingFileWriter_Write(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	writer, err := NewRotatingFileWriter(logFile, 100, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	data := []byte("This is a test log message\n")
	n, err := writer.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("File content = %q, want %q", string(content), string(data))
	}
}

func TestRotatingFileWriter_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 50, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	firstMsg := strings.Repeat("A", 30) + "\n"
	secondMsg := strings.Repeat("B", 30) + "\n"

	if _, err := writer.Write([]byte(firstMsg)); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if _, err := writer.Write([]byte(secondMsg)); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != secondMsg {
		t.Errorf("Current log content = %q, want %q", string(content), secondMsg)
	}

	backup, err := os.ReadFile(filepath.Join(tmpDir, "test.1.log"))
	if err != nil {
		t.Fatalf("Backup file was not created: %v", err)
	}
	if string(backup) != firstMsg {
		t.Errorf("Backup content = %q, want %q", string(backup), firstMsg)
	}
}

func TestRotatingFileWriter_MaxBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 20, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("Message %d: %s\n", i, strings.Repeat("X", 15))
		if _, err := writer.Write([]byte(msg)); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	if fmt.Sprint(names) != "[test.1.log test.2.log test.log]" {
		t.Errorf("Unexpected files %v", names)
	}

	// newest backup holds the message before the current one
	newest, err := os.ReadFile(filepath.Join(tmpDir, "test.1.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(newest), "Message 3") {
		t.Errorf("Newest backup = %q, want message 3", newest)
	}
	oldest, err := os.ReadFile(filepath.Join(tmpDir, "test.2.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(oldest), "Message 2") {
		t.Errorf("Oldest backup = %q, want message 2", oldest)
	}
}

func TestRotatingFileWriter_NoBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 10, 0)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	for _, msg := range []string{"first line\n", "second line\n"} {
		if _, err := writer.Write([]byte(msg)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) != 1 {
		t.Errorf("Expected only the current file, got %d files", len(files))
	}
	content, _ := os.ReadFile(logFile)
	if string(content) != "second line\n" {
		t.Errorf("Current content = %q", content)
	}
}

func TestRotatingFileWriter_WriteAfterClose(t *testing.T) {
	writer, err := NewRotatingFileWriter(filepath.Join(t.TempDir(), "test.log"), 100, 1)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if _, err := writer.Write([]byte("late\n")); err == nil {
		t.Error("Expected error when writing to a closed writer")
	}
}

func TestRotatingFileWriter_BackupName(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewRotatingFileWriter(filepath.Join(tmpDir, "app.log"), 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	if got, want := writer.backupName(1), filepath.Join(tmpDir, "app.1.log"); got != want {
		t.Errorf("backupName(1) = %q, want %q", got, want)
	}

	noExt, err := NewRotatingFileWriter(filepath.Join(tmpDir, "sitediff"), 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer noExt.Close()
	if got, want := noExt.backupName(2), filepath.Join(tmpDir, "sitediff.2"); got != want {
		t.Errorf("backupName(2) = %q, want %q", got, want)
	}
}
