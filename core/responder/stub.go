package responder

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/metrics"
)

// Canned replies of the stub responder.
const (
	StubGreeting = "Привет!!"
	StubFarewell = "Прощай!!"
	StubDefault  = "Это тестовый скрипт"
)

var (
	greetingWords = []string{"привет", "здравствуй", "добрый день"}
	farewellWords = []string{"пока", "до завтра", "прощай", "до свидания"}
)

// Stub answers from keyword lists without any I/O. Greetings are checked before farewells
// and the whole prompt is searched, including the state template.
type Stub struct{}

// Generate returns the canned reply matching prompt.
func (Stub) Generate(_ context.Context, prompt string) (string, error) {
	start := time.Now()
	reply := stubReply(prompt)
	metrics.ObserveResponder(coreconfig.ResponderStub, "ok", time.Since(start))
	return reply, nil
}

func stubReply(prompt string) string {
	folded := cases.Fold().String(prompt)
	for _, w := range greetingWords {
		if strings.Contains(folded, w) {
			return StubGreeting
		}
	}
	for _, w := range farewellWords {
		if strings.Contains(folded, w) {
			return StubFarewell
		}
	}
	return StubDefault
}
