package app

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/langchou/petgazer/internal/config"
	"github.com/langchou/petgazer/internal/session"
)

func TestResolveCredentials(t *testing.T) {
	lat, lon := 47.0, 8.0
	dir := t.TempDir()
	file := filepath.Join(dir, "login.conf")
	vault := session.NewVault("secret")
	if err := session.SaveCredentials(file, session.Credentials{Email: "file@example.com", Password: "pw", HomeLat: &lat, HomeLon: &lon}, vault); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	tests := []struct {
		name      string
		cfg       config.Config
		wantEmail string
		wantErr   error
	}{
		{
			name:      "environment wins",
			cfg:       config.Config{Email: "env@example.com", Password: "pw", CredentialsFile: file},
			wantEmail: "env@example.com",
		},
		{
			name:      "file fallback",
			cfg:       config.Config{CredentialsFile: file},
			wantEmail: "file@example.com",
		},
		{
			name:    "nothing configured",
			cfg:     config.Config{CredentialsFile: filepath.Join(dir, "missing.conf")},
			wantErr: session.ErrConfigurationInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ResolveCredentials(&tt.cfg, vault)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveCredentials: %v", err)
			}
			if creds.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", creds.Email, tt.wantEmail)
			}
		})
	}
}

func TestResolveCredentialsHomeOverride(t *testing.T) {
	fileLat, fileLon := 47.0, 8.0
	envLat, envLon := 46.5, 7.5
	file := filepath.Join(t.TempDir(), "login.conf")
	if err := session.SaveCredentials(file, session.Credentials{Email: "a@b.c", Password: "pw", HomeLat: &fileLat, HomeLon: &fileLon}, nil); err != nil {
		t.Fatal(err)
	}

	creds, err := ResolveCredentials(&config.Config{CredentialsFile: file, HomeLat: &envLat, HomeLon: &envLon}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if *creds.HomeLat != envLat || *creds.HomeLon != envLon {
		t.Errorf("home = %v,%v, want env override", *creds.HomeLat, *creds.HomeLon)
	}
}
