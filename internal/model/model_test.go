package model

import (
	"context"
	"strings"
	"testing"
)

func TestNewModeSelection(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantMock bool
		wantErr  bool
	}{
		{name: "auto without key", cfg: Config{Mode: "auto"}, wantMock: true},
		{name: "empty mode without key", cfg: Config{}, wantMock: true},
		{name: "auto with key", cfg: Config{Mode: "auto", APIKey: "sk-test"}, wantMock: false},
		{name: "explicit mock", cfg: Config{Mode: "mock", APIKey: "sk-test"}, wantMock: true},
		{name: "explicit openai", cfg: Config{Mode: "openai", APIKey: "sk-test"}, wantMock: false},
		{name: "openai without key", cfg: Config{Mode: "openai"}, wantErr: true},
		{name: "unknown mode", cfg: Config{Mode: "quantum"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New() error = nil, want failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			_, isMock := client.(*MockClient)
			if isMock != tt.wantMock {
				t.Fatalf("client = %T, wantMock = %v", client, tt.wantMock)
			}
		})
	}
}

func TestMockClientReplies(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	resp, err := c.Complete(ctx, Request{Messages: []Message{
		{Role: RoleSystem, Content: "You are a Credit Risk Analyst Assistant"},
		{Role: RoleUser, Content: "analyze customer 93486"},
	}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Noted: analyze customer 93486" {
		t.Fatalf("Content = %q", resp.Content)
	}

	resp, err = c.Complete(ctx, Request{Messages: []Message{
		{Role: RoleSystem, Content: "### Previous Knowledge About This User:\n- risk_assessments: customer_93486 = HIGH_RISK"},
		{Role: RoleUser, Content: "what do you remember?"},
	}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(resp.Content, "prior analysis context") {
		t.Fatalf("Content = %q, want memory acknowledgement", resp.Content)
	}
}

func TestMockClientHonorsCancellation(t *testing.T) {
	c := NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Complete(ctx, Request{}); err == nil {
		t.Fatalf("Complete() error = nil, want context error")
	}
}
