package integrity

import "testing"

func TestNullAcceptsEverything(t *testing.T) {
	var n Null
	if !n.CheckFile("any", "/does/not/exist") {
		t.Fatal("Null.CheckFile must always report true")
	}
	if !n.CheckSegment("any", 0xdeadbeef) {
		t.Fatal("Null.CheckSegment must always report true")
	}
}

func TestCosignCheckerDefaultsSigAndCertPaths(t *testing.T) {
	c := NewCosignChecker("https://example.test/issuer", "https://example.test/identity/.*")
	if got, want := c.sigPath("/plugins/foo.go"), "/plugins/foo.go.sig"; got != want {
		t.Fatalf("sigPath() = %q, want %q", got, want)
	}
	if got, want := c.certPath("/plugins/foo.go"), "/plugins/foo.go.pem"; got != want {
		t.Fatalf("certPath() = %q, want %q", got, want)
	}
}

func TestCosignCheckerCustomPathFuncs(t *testing.T) {
	c := NewCosignChecker("iss", "id")
	c.SigPath = func(path string) string { return path + ".detached" }
	c.CertPath = func(path string) string { return path + ".crt" }

	if got := c.sigPath("x.go"); got != "x.go.detached" {
		t.Fatalf("custom SigPath not used, got %q", got)
	}
	if got := c.certPath("x.go"); got != "x.go.crt" {
		t.Fatalf("custom CertPath not used, got %q", got)
	}
}

func TestCosignCheckerSkipsWhenCosignMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	c := NewCosignChecker("iss", "id")
	if !c.CheckFile("demo", "/plugins/demo.go") {
		t.Fatal("CheckFile must not fail closed when cosign is not installed")
	}
}
