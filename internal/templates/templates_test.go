package templates

import (
	"strings"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"assistant", "custom", "english-tutor", "fitness-coach", "journal", "study-buddy"}
	if got := c.IDs(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("IDs = %v, want %v", got, want)
	}
	if c.List()[0].ID != "assistant" {
		t.Errorf("List should keep catalog order")
	}
	tutor, _ := c.Get("english-tutor")
	if len(tutor.SuggestedCrons) != 2 || tutor.SuggestedCrons[0].Schedule != "0 9 * * *" {
		t.Errorf("crons = %+v", tutor.SuggestedCrons)
	}
}

func TestRender(t *testing.T) {
	c := MustLoad()

	out, err := c.Render("assistant", Vars{Name: "Luna", UserName: "Sam", Personality: "Dry wit.", Rules: "- Never use slang"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"You are Luna,", "Your owner is Sam.", "Dry wit.", "- Never use slang"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "{{") {
		t.Errorf("unreplaced placeholder in:\n%s", out)
	}
}

func TestRenderDefaults(t *testing.T) {
	c := MustLoad()
	out, err := c.Render("fitness-coach", Vars{Name: "Rex", UserName: "Ana"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, defaultPersonality) {
		t.Error("empty personality should use the default")
	}
	if !strings.Contains(out, "Adapt to home or gym workouts") {
		t.Error("empty rules should use the template default rules")
	}
}

func TestRenderUnknown(t *testing.T) {
	if _, err := MustLoad().Render("nope", Vars{}); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	data := []byte("- id: a\n  identity: x\n- id: a\n  identity: y\n")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
