package banned

import (
	"regexp"
	"strings"
)

// Global phrase blocklist. Compiled once into an immutable lookup table at
// package init; these never hit the database.

const (
	CategoryOpener     = "opener"
	CategoryFiller     = "filler"
	CategoryGeneric    = "generic"
	CategoryCloser     = "closer"
	CategoryStructural = "structural"
	CategoryEmoji      = "emoji_overuse"
	CategoryLearned    = "learned"
)

var globalOpeners = []string{
	"this is spot on",
	"great post",
	"so inspiring",
	"love this",
	"well said",
	"couldn't agree more",
	"this resonates",
	"absolutely love this",
	"this is gold",
	"100% this",
}

var globalFillers = []string{
	"game-changer",
	"game changer",
	"synergy",
	"leverage",
	"paradigm shift",
	"deep dive",
	"circle back",
	"low-hanging fruit",
	"move the needle",
	"at the end of the day",
	"double down",
	"secret sauce",
}

var globalGenerics = []string{
	"thanks for sharing",
	"food for thought",
	"great insights",
	"valuable content",
	"this is so true",
	"nailed it",
	"great point",
	"interesting perspective",
}

var globalClosers = []string{
	"what do you think?",
	"thoughts?",
	"let that sink in",
	"agree or disagree?",
	"who else can relate?",
	"drop a comment below",
}

// structuralPatterns catch shapes rather than phrases.
var structuralPatterns = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"single_word_exclamation", regexp.MustCompile(`(?m)^\s*[A-Za-z]+!\s*$`)},
	{"triple_exclamation", regexp.MustCompile(`!{3,}`)},
	{"rhetorical_hook", regexp.MustCompile(`(?i)^(ever wondered|did you know|imagine if)\b`)},
}

// suspiciousEmojis are the ones machine-written engagement bait leans on.
var suspiciousEmojis = []string{"🚀", "🔥", "💯", "🙌", "✨", "💪", "🎯", "⚡", "👇", "🧵"}

const emojiOveruseThreshold = 3

// globalIndex maps lower-cased phrase to its category for O(1) membership
// checks.
var globalIndex = buildGlobalIndex()

func buildGlobalIndex() map[string]string {
	index := make(map[string]string)
	add := func(phrases []string, category string) {
		for _, p := range phrases {
			index[strings.ToLower(p)] = category
		}
	}
	add(globalOpeners, CategoryOpener)
	add(globalFillers, CategoryFiller)
	add(globalGenerics, CategoryGeneric)
	add(globalClosers, CategoryCloser)
	return index
}

// IsGlobalPhrase reports whether the phrase is in the global blocklist.
func IsGlobalPhrase(phrase string) bool {
	_, ok := globalIndex[strings.ToLower(strings.TrimSpace(phrase))]
	return ok
}

// GlobalCategory returns the category of a global phrase, or "".
func GlobalCategory(phrase string) string {
	return globalIndex[strings.ToLower(strings.TrimSpace(phrase))]
}
