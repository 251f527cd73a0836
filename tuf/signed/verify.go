package signed

import (
	"time"

	cjson "github.com/docker/go/canonical/json"
	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/keys"
)

// nowFunc is overridden in tests so expiry checks are deterministic.
var nowFunc = time.Now

// expirer is satisfied by every payload kind; it lets Verify check expiry
// without a type switch per payload.
type expirer interface {
	ExpiresAt() time.Time
}

// versioner is satisfied by every payload kind.
type versioner interface {
	VersionNumber() uint64
}

// Verify checks a role's signed payload against the registry: it requires
// a threshold of distinct, valid signatures from the role's authorized
// keys, a version no lower than minVersion (rollback protection; a version
// equal to minVersion is accepted), and an expiry still in the future. Signatures from keys not authorized
// for the role, or with malformed/non-verifying signature bytes, are
// silently excluded from the count rather than treated as a hard failure —
// a payload can carry co-signatures from keys unknown to this role's DB
// without invalidating the ones that do count.
func Verify[T interface {
	expirer
	versioner
}](s *data.Signed[T], role string, minVersion uint64, db *keys.DB) error {
	if s.Signed.ExpiresAt().Before(nowFunc()) {
		return ErrExpired{Role: role, Expired: s.Signed.ExpiresAt().Format(time.RFC3339)}
	}
	if s.Signed.VersionNumber() < minVersion {
		return ErrLowVersion{Got: int64(s.Signed.VersionNumber()), Min: int64(minVersion)}
	}

	spec, err := db.GetRole(role)
	if err != nil {
		return err
	}

	canonical, err := cjson.MarshalCanonical(s.Signed)
	if err != nil {
		return errors.Wrap(err, "canonicalizing payload for verification")
	}

	authorized := make(map[string]struct{}, len(spec.KeyIDs))
	for _, id := range spec.KeyIDs {
		authorized[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(s.Signatures))
	valid := 0
	for _, sig := range s.Signatures {
		if _, ok := authorized[sig.KeyID]; !ok {
			continue
		}
		if _, dup := seen[sig.KeyID]; dup {
			continue
		}
		key := db.GetKey(sig.KeyID)
		if key == nil {
			continue
		}
		if err := verifySignature(canonical, key, sig); err != nil {
			continue
		}
		seen[sig.KeyID] = struct{}{}
		valid++
	}

	if valid < spec.Threshold {
		return ErrRoleThreshold{Role: role, Got: valid, Need: spec.Threshold}
	}
	return nil
}
