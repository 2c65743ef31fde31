package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/jazzyalex/agent-sessions/internal/source"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

func homeRoots(b *testing.B) []source.Root {
	b.Helper()
	homeDir, err := os.UserHomeDir()
	if err != nil {
		b.Skip("no home directory")
	}
	return source.DefaultRoots(homeDir)
}

func BenchmarkLoad(b *testing.B) {
	roots := homeRoots(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := Load(context.Background(), roots, LoadOptions{IncludeSubagents: true}, nil)
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}

func BenchmarkParseFile(b *testing.B) {
	files, err := source.ScanRoots(homeRoots(b))
	if err != nil {
		b.Fatal(err)
	}
	if len(files) == 0 {
		b.Skip("no session files")
	}

	// Find the largest file for worst-case benchmarking
	var biggest source.DiscoveredFile
	for _, f := range files {
		if f.SizeBytes > biggest.SizeBytes {
			biggest = f
		}
	}

	b.Logf("Benchmarking largest file: %s (%.1f KB)", biggest.Path, float64(biggest.SizeBytes)/1024)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		result := source.ParseFile(biggest)
		if result.Err != nil {
			b.Fatal(result.Err)
		}
	}
}

func BenchmarkScanRoots(b *testing.B) {
	roots := homeRoots(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		files, err := source.ScanRoots(roots)
		if err != nil {
			b.Fatal(err)
		}
		_ = files
	}
}

func BenchmarkLoadWithCache(b *testing.B) {
	roots := homeRoots(b)

	cache, err := store.Open(CachePath())
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = cache.Close() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cr, err := LoadWithCache(context.Background(), roots, LoadOptions{IncludeSubagents: true}, cache, nil)
		if err != nil {
			b.Fatal(err)
		}
		_ = cr
	}
}
