package logger

import "testing"

func TestRedactKVsMasksCredentialKeys(t *testing.T) {
	in := []interface{}{"postgres_password", "hunter2", "host", "localhost"}
	out := redactKVs(in)

	if out[1] != "[REDACTED]" {
		t.Fatalf("password value: want=%q got=%v", "[REDACTED]", out[1])
	}
	if out[3] != "localhost" {
		t.Fatalf("host value: want=%q got=%v", "localhost", out[3])
	}
	if in[1] != "hunter2" {
		t.Fatalf("input mutated: got=%v", in[1])
	}
}

func TestRedactKVsLeavesOddTrailingKey(t *testing.T) {
	out := redactKVs([]interface{}{"api_key", "abc", "dangling"})
	if out[1] != "[REDACTED]" {
		t.Fatalf("api_key value: want=%q got=%v", "[REDACTED]", out[1])
	}
	if out[2] != "dangling" {
		t.Fatalf("trailing key: want=%q got=%v", "dangling", out[2])
	}
}
