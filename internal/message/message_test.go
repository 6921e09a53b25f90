package message

import "testing"

func TestToChatParamDefaultsRoleToUser(t *testing.T) {
	m := Message{Text: "hello"}
	param := m.ToChatParam()
	if param.Role != "user" {
		t.Fatalf("expected default role %q, got %q", "user", param.Role)
	}
	if param.Content != "hello" {
		t.Fatalf("expected content %q, got %q", "hello", param.Content)
	}
}

func TestToChatParamPreservesExplicitRole(t *testing.T) {
	m := New(RoleAssistant, "hi there")
	param := m.ToChatParam()
	if param.Role != "assistant" {
		t.Fatalf("expected role %q, got %q", "assistant", param.Role)
	}
}

func TestStringReturnsText(t *testing.T) {
	m := New(RoleSystem, "be helpful")
	if m.String() != "be helpful" {
		t.Fatalf("expected %q, got %q", "be helpful", m.String())
	}
}
