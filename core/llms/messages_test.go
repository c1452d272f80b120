package llms

import "testing"

func TestParseImageDataURLReadsDeclaredType(t *testing.T) {
	image, err := ParseImageDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if image.MIMEType != "image/png" || string(image.Data) != "hello" {
		t.Fatalf("expected png image with payload hello, got %q %q", image.MIMEType, image.Data)
	}
}

func TestParseImageDataURLAcceptsBarePayload(t *testing.T) {
	image, err := ParseImageDataURL("aGVsbG8=")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if image.MIMEType != "image/jpeg" || string(image.Data) != "hello" {
		t.Fatalf("expected jpeg image with payload hello, got %q %q", image.MIMEType, image.Data)
	}
}

func TestParseImageDataURLRejectsInvalidPayload(t *testing.T) {
	for _, input := range []string{"data:image/png;base64,%%%", "", "data:image/png;base64,"} {
		if _, err := ParseImageDataURL(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestApplyStreamingOptions(t *testing.T) {
	options := ApplyStreamingOptions(
		WithSystemPrompt("first"),
		WithSystemPrompt("second"),
		WithTurns(Turn{Role: TurnRoleUser, Content: "a"}),
		WithTurns(Turn{Role: TurnRoleAssistant, Content: "b"}),
		WithGoogleSearch(),
	)

	if options.Instructions != "second" {
		t.Fatalf("expected last system prompt to win, got %q", options.Instructions)
	}
	if len(options.Turns) != 2 || options.Turns[1].Content != "b" {
		t.Fatalf("expected turns to accumulate, got %+v", options.Turns)
	}
	if !options.GoogleSearch {
		t.Fatalf("expected google search enabled")
	}
}
