package client

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func signBody(secret, body string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	c := NewPaymentClient("https://pay.example.net", "key", "topsecret")
	body := `{"payment_id":123,"order_id":"order-1","payment_status":"finished"}`

	if !c.VerifySignature([]byte(body), signBody("topsecret", body)) {
		t.Error("valid signature rejected")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	c := NewPaymentClient("https://pay.example.net", "key", "topsecret")
	body := `{"payment_id":123}`

	if c.VerifySignature([]byte(body), signBody("othersecret", body)) {
		t.Error("signature from wrong secret accepted")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	c := NewPaymentClient("https://pay.example.net", "key", "topsecret")
	sig := signBody("topsecret", `{"price_amount":45}`)

	if c.VerifySignature([]byte(`{"price_amount":1}`), sig) {
		t.Error("tampered body accepted")
	}
}

func TestVerifySignature_EmptyOrGarbage(t *testing.T) {
	c := NewPaymentClient("https://pay.example.net", "key", "topsecret")

	if c.VerifySignature([]byte("{}"), "") {
		t.Error("empty signature accepted")
	}
	if c.VerifySignature([]byte("{}"), "not-hex-at-all") {
		t.Error("garbage signature accepted")
	}
}
