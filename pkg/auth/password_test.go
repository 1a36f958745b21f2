package auth

import "testing"

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret99")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if hash == "s3cret99" {
		t.Fatalf("hash must not equal the raw password")
	}
	if !CheckPassword("s3cret99", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected password check to fail")
	}
}

func TestCheckPasswordRejectsMalformedHash(t *testing.T) {
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Fatalf("expected malformed hash to fail")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("reader42"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("ab1"); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if err := ValidatePassword("onlyletters"); err == nil {
		t.Fatalf("expected missing digits to fail")
	}
	if err := ValidatePassword("12345678"); err == nil {
		t.Fatalf("expected missing letters to fail")
	}
}
