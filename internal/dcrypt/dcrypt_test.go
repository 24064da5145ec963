package dcrypt

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher("correct horse battery staple")
	head := []byte{0x01, 0x02, 0x03}
	body := []byte("a navigation report payload")

	cipherText, err := c.Encrypt(head, body)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if string(cipherText) == string(body) {
		t.Fatal("ciphertext equals plaintext")
	}

	plain, err := c.Decrypt(head, cipherText)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) != string(body) {
		t.Fatalf("got %q, want %q", plain, body)
	}
}

func TestDifferentHeadsProduceDifferentCiphertext(t *testing.T) {
	c := NewCipher("passphrase")
	body := []byte("same body bytes")

	a, err := c.Encrypt([]byte{1}, body)
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	b, err := c.Encrypt([]byte{2}, body)
	if err != nil {
		t.Fatalf("encrypt b: %v", err)
	}
	if string(a) == string(b) {
		t.Fatal("different heads produced identical ciphertext")
	}
}

func TestWrongPassphraseDoesNotRecoverPlaintext(t *testing.T) {
	head := []byte{0xAA}
	body := []byte("sensitive telemetry")

	cipherText, err := NewCipher("right").Encrypt(head, body)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := NewCipher("wrong").Decrypt(head, cipherText)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) == string(body) {
		t.Fatal("wrong passphrase recovered correct plaintext")
	}
}
