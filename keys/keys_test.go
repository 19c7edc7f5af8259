package keys_test

import (
	"errors"
	"testing"

	"github.com/johnbchron/openai-orch/keys"
)

func TestNew(t *testing.T) {
	k := keys.New("sk-test", "org-test")

	if k.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want %q", k.APIKey, "sk-test")
	}
	if k.OrgID != "org-test" {
		t.Errorf("OrgID = %q, want %q", k.OrgID, "org-test")
	}
}

func TestFromEnv_ReadsVariables(t *testing.T) {
	t.Setenv(keys.EnvAPIKey, "sk-from-env")
	t.Setenv(keys.EnvOrgID, "org-from-env")

	k, err := keys.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if k.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want %q", k.APIKey, "sk-from-env")
	}
	if k.OrgID != "org-from-env" {
		t.Errorf("OrgID = %q, want %q", k.OrgID, "org-from-env")
	}
}

func TestFromEnv_OrgIDOptional(t *testing.T) {
	t.Setenv(keys.EnvAPIKey, "sk-from-env")
	t.Setenv(keys.EnvOrgID, "")

	k, err := keys.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if k.OrgID != "" {
		t.Errorf("OrgID = %q, want empty", k.OrgID)
	}
}

func TestFromEnv_MissingAPIKey(t *testing.T) {
	t.Setenv(keys.EnvAPIKey, "")

	_, err := keys.FromEnv()
	if !errors.Is(err, keys.ErrMissingAPIKey) {
		t.Errorf("FromEnv error = %v, want ErrMissingAPIKey", err)
	}
}
