// Package integrity provides pluginapi.IntegrityChecker implementations:
// a no-op for deployments that don't need it, and one backed by the cosign
// CLI for verifying a plugin's source file against a detached signature
// before the symbol resolver ever evaluates it.
//
// Grounded on the teacher's plugin.CosignVerifier, which shells out to
// `cosign verify-blob` and treats a missing cosign binary as "skip with a
// warning" rather than a hard failure, so environments without cosign
// installed are not broken.
package integrity

import (
	"log/slog"
	"os/exec"
)

// Null is an IntegrityChecker that accepts everything, mirroring strongSwan
// builds compiled without integrity checking support. A Loader with no
// checker configured makes no integrity checks at all; installing Null via
// loader.WithIntegrityChecker enables checking with every check passing.
type Null struct{}

func (Null) CheckFile(name, path string) bool                { return true }
func (Null) CheckSegment(name string, symbolAddr uintptr) bool { return true }

// CosignChecker verifies a plugin's source file using cosign keyless
// signatures before it is handed to the symbol resolver. Segment checking
// has no meaningful analog for interpreted plugin source (there is no
// loaded memory segment to measure against a reference digest until the
// interpreter has already evaluated the file), so CheckSegment always
// reports true; file-level verification is what actually gates loading.
type CosignChecker struct {
	OIDCIssuer            string
	AllowedIdentityRegexp string

	// SigPath and CertPath compute the detached signature/certificate
	// paths for a plugin source file. Defaulted to path+".sig"/path+".pem"
	// when nil.
	SigPath  func(path string) string
	CertPath func(path string) string
}

// NewCosignChecker builds a CosignChecker for the given OIDC issuer and
// identity regexp (e.g. "https://github.com/ike-plugins/.*").
func NewCosignChecker(oidcIssuer, identityRegexp string) *CosignChecker {
	return &CosignChecker{
		OIDCIssuer:            oidcIssuer,
		AllowedIdentityRegexp: identityRegexp,
	}
}

func (c *CosignChecker) sigPath(path string) string {
	if c.SigPath != nil {
		return c.SigPath(path)
	}
	return path + ".sig"
}

func (c *CosignChecker) certPath(path string) string {
	if c.CertPath != nil {
		return c.CertPath(path)
	}
	return path + ".pem"
}

// CheckFile runs `cosign verify-blob` against path's detached signature and
// certificate. If the cosign binary is not installed, verification is
// skipped with a warning rather than failing the load, so deployments
// without cosign keep working.
func (c *CosignChecker) CheckFile(name, path string) bool {
	cosignBin, err := exec.LookPath("cosign")
	if err != nil {
		slog.Warn("cosign not found, skipping plugin file verification", "plugin", name, "path", path)
		return true
	}

	cmd := exec.Command(cosignBin,
		"verify-blob",
		"--signature", c.sigPath(path),
		"--certificate", c.certPath(path),
		"--certificate-oidc-issuer", c.OIDCIssuer,
		"--certificate-identity-regexp", c.AllowedIdentityRegexp,
		path,
	)
	if out, runErr := cmd.CombinedOutput(); runErr != nil {
		slog.Error("plugin signature verification failed", "plugin", name, "path", path, "error", runErr, "output", string(out))
		return false
	}
	return true
}

func (c *CosignChecker) CheckSegment(name string, symbolAddr uintptr) bool { return true }
