package tags

import (
	"runtime"
	"strings"
	"testing"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		machine []string
		only    []string
		except  []string
		want    bool
	}{
		{"no constraints", []string{"darwin", "amd64"}, nil, nil, true},
		{"only match", []string{"darwin", "amd64"}, []string{"darwin"}, nil, true},
		{"only no match", []string{"linux", "amd64"}, []string{"darwin"}, nil, false},
		{"except match", []string{"darwin", "amd64"}, nil, []string{"darwin"}, false},
		{"except no match", []string{"linux", "amd64"}, nil, []string{"darwin"}, true},
		{"only and except both match", []string{"darwin", "work"}, []string{"darwin"}, []string{"work"}, false},
		{"only match except no match", []string{"darwin", "home"}, []string{"darwin"}, []string{"work"}, true},
		{"empty machine tags", []string{}, []string{"darwin"}, nil, false},
		{"empty machine no constraints", []string{}, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.machine, tt.only, tt.except); got != tt.want {
				t.Errorf("Matches(%v, %v, %v) = %v, want %v", tt.machine, tt.only, tt.except, got, tt.want)
			}
		})
	}
}

func TestAutoDetect(t *testing.T) {
	detected := AutoDetect()
	if len(detected) < 2 {
		t.Fatalf("expected at least 2 tags, got %d", len(detected))
	}
	if detected[0] != runtime.GOOS {
		t.Errorf("first tag = %q, want %q", detected[0], runtime.GOOS)
	}
	if detected[1] != runtime.GOARCH {
		t.Errorf("second tag = %q, want %q", detected[1], runtime.GOARCH)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.HasSuffix(path, "machine.yaml") {
		t.Errorf("ConfigPath() = %q, want machine.yaml suffix", path)
	}
	if !strings.Contains(path, "rigup") {
		t.Errorf("ConfigPath() = %q, should live under the rigup config dir", path)
	}
}
