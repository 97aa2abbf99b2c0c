// Package credentials resolves the model provider API key for a robot
// across the robot, user and repository scopes.
package credentials

import (
	"strings"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// Credential is the resolved key plus where it came from, for logging.
type Credential struct {
	APIKey     string
	APIBaseURL string
	Source     schemas.CredentialSource
	ProfileID  string
}

// Describe names the credential without exposing the key.
func (c Credential) Describe() string {
	if c.ProfileID == "" {
		return string(c.Source)
	}
	return string(c.Source) + " profile " + c.ProfileID
}

// Resolve applies the precedence: the robot's inline key counts only when
// its credential source is "robot"; otherwise a profile is taken from the
// user or repository store by explicit id, then the store default, then
// the first profile. A missing key is a ConfigError.
func Resolve(provider schemas.ModelProvider, robot schemas.Robot, user schemas.ProviderCredentials, repo schemas.ProviderCredentials) (Credential, error) {
	cfg := robot.Model
	source := cfg.CredentialSource
	if source == "" {
		source = schemas.CredentialSourceRobot
	}

	var cred Credential
	switch source {
	case schemas.CredentialSourceRobot:
		cred = Credential{APIKey: cfg.APIKey, APIBaseURL: cfg.APIBaseURL, Source: source}
	case schemas.CredentialSourceUser, schemas.CredentialSourceRepo:
		stores := user
		if source == schemas.CredentialSourceRepo {
			stores = repo
		}
		profile, err := selectProfile(stores[provider], cfg.ProfileID, source, provider)
		if err != nil {
			return Credential{}, err
		}
		cred = Credential{APIKey: profile.APIKey, APIBaseURL: profile.APIBaseURL, Source: source, ProfileID: profile.ID}
		if cred.APIBaseURL == "" {
			cred.APIBaseURL = cfg.APIBaseURL
		}
	default:
		return Credential{}, schemas.NewConfigError("robot %q has unknown credential source %q", robot.ID, source)
	}

	cred.APIKey = strings.TrimSpace(cred.APIKey)
	if cred.APIKey == "" {
		return Credential{}, schemas.NewConfigError("no %s API key configured for robot %q (%s)", provider, robot.ID, cred.Describe())
	}
	return cred, nil
}

func selectProfile(store schemas.CredentialStore, profileID string, source schemas.CredentialSource, provider schemas.ModelProvider) (schemas.CredentialProfile, error) {
	if profileID != "" {
		for _, profile := range store.Profiles {
			if profile.ID == profileID {
				return profile, nil
			}
		}
		return schemas.CredentialProfile{}, schemas.NewConfigError("%s credential profile %q for %s not found", source, profileID, provider)
	}
	if store.DefaultProfileID != "" {
		for _, profile := range store.Profiles {
			if profile.ID == store.DefaultProfileID {
				return profile, nil
			}
		}
	}
	if len(store.Profiles) > 0 {
		return store.Profiles[0], nil
	}
	return schemas.CredentialProfile{}, schemas.NewConfigError("no %s credential profiles for %s", source, provider)
}
