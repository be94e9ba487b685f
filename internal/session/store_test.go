package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestVaultRoundTrip(t *testing.T) {
	v := NewVault("hunter2")
	sealed, err := v.Encrypt([]byte("token"))
	if err != nil {
		t.Fatal(err)
	}
	if !IsSealed(sealed) {
		t.Fatal("output missing vault header")
	}
	plain, err := v.Decrypt(sealed)
	if err != nil || string(plain) != "token" {
		t.Fatalf("Decrypt() = %q, %v", plain, err)
	}

	if _, err := NewVault("wrong").Decrypt(sealed); !errors.Is(err, ErrVaultDecrypt) {
		t.Errorf("wrong passphrase err = %v", err)
	}
	if NewVault("") != nil {
		t.Error("empty passphrase should disable the vault")
	}
}

func TestFileTokenStore(t *testing.T) {
	tests := []struct {
		name  string
		vault *Vault
	}{
		{name: "plain", vault: nil},
		{name: "encrypted", vault: NewVault("pass")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			store := NewFileTokenStore(path, tt.vault)

			if err := store.Save(&StoredToken{AccessToken: "abc", UserID: "u"}); err != nil {
				t.Fatal(err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("mode = %v, want 0600", info.Mode().Perm())
			}

			got, err := store.Load()
			if err != nil || got.AccessToken != "abc" || got.UserID != "u" {
				t.Fatalf("Load() = %+v, %v", got, err)
			}
			if err := store.Clear(); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Load(); err == nil {
				t.Error("Load after Clear should fail")
			}
		})
	}
}

func TestFileTokenStoreLegacyPlainToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access_token.txt")
	if err := os.WriteFile(path, []byte("rawtoken\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileTokenStore(path, nil).Load()
	if err != nil || got.AccessToken != "rawtoken" || got.UserID != "" {
		t.Fatalf("Load() = %+v, %v", got, err)
	}
}

func TestCredentialsValidate(t *testing.T) {
	lat, lon, bad := 47.0, 8.0, 200.0
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{name: "valid", creds: Credentials{Email: "a", Password: "b", HomeLat: &lat, HomeLon: &lon}},
		{name: "no home", creds: Credentials{Email: "a", Password: "b"}},
		{name: "missing password", creds: Credentials{Email: "a"}, wantErr: true},
		{name: "half home", creds: Credentials{Email: "a", Password: "b", HomeLat: &lat}, wantErr: true},
		{name: "bad longitude", creds: Credentials{Email: "a", Password: "b", HomeLat: &lat, HomeLon: &bad}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfigurationInvalid) {
				t.Errorf("err = %v, want ErrConfigurationInvalid", err)
			}
		})
	}
}

func TestCredentialsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login.conf")
	vault := NewVault("pass")
	want := Credentials{Email: "me@example.com", Password: "pw"}

	if err := SaveCredentials(path, want, vault); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCredentials(path, vault)
	if err != nil || got.Email != want.Email || got.Password != want.Password {
		t.Fatalf("LoadCredentials() = %+v, %v", got, err)
	}
}
