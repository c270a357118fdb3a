package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestLocalPublisher(t *testing.T) {
	got, err := LocalPublisher{}.Publish(context.Background(), uuid.New(), "log", "/jobs/1/log.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/jobs/1/log.txt" {
		t.Errorf("got %q", got)
	}
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	got := ObjectKey(id, "plot_pdf", "/tmp/job/output/CMIP5_25000Pa_da_pdf.png")
	want := "jobs/6ba7b810-9dad-11d1-80b4-00c04fd430c8/plot_pdf.png"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		location   string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3://copernicus-outputs/jobs/1/log.txt", "copernicus-outputs", "jobs/1/log.txt", false},
		{Location("b", "k"), "b", "k", false},
		{"/local/path.txt", "", "", true},
		{"s3://bucket-only", "", "", true},
		{"s3:///key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			bucket, key, err := ParseLocation(tt.location)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLocation) {
					t.Fatalf("expected ErrInvalidLocation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("got (%q, %q), want (%q, %q)", bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"recipe.yml":  "application/x-yaml",
		"log.txt":     "text/plain",
		"plot.png":    "image/png",
		"plot.pdf":    "application/pdf",
		"result.zip":  "application/zip",
		"data.nc":     "application/x-netcdf",
		"unknown.xyz": "application/octet-stream",
	}
	for file, want := range tests {
		if got := ContentType(file); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", file, got, want)
		}
	}
}
