package scenario

// DefaultScenarioVersion changes whenever DefaultScenario changes shape or wording.
const DefaultScenarioVersion = 1

// DefaultScenarioName is the name given to the scenario created for bots that have none.
const DefaultScenarioName = "Default scenario"

// DefaultScenario returns the bootstrap dialogue: welcome, then help/services/contacts, then end.
// Each call returns a fresh value.
func DefaultScenario() *Definition {
	states := []struct {
		name string
		cfg  StateConfig
	}{
		{"welcome", StateConfig{
			Prompt: "Ты приветственный бот. Поприветствуй пользователя и спроси, чем ты можешь помочь.",
			Transitions: []Transition{
				{Keyword: "помощь", Target: "help"},
				{Keyword: "услуги", Target: "services"},
				{Keyword: "контакты", Target: "contacts"},
			},
			DefaultNextState: "help",
			FallbackState:    "welcome",
		}},
		{"help", StateConfig{
			Prompt: "Ты помощник. Опиши, какие услуги ты предоставляешь. Будь дружелюбным и полезным.",
			Transitions: []Transition{
				{Keyword: "контакты", Target: "contacts"},
				{Keyword: "назад", Target: "welcome"},
			},
			DefaultNextState: "help",
			FallbackState:    "welcome",
		}},
		{"services", StateConfig{
			Prompt: "Расскажи о конкретных услугах компании. Упомяни консультации, поддержку и другие услуги.",
			Transitions: []Transition{
				{Keyword: "контакты", Target: "contacts"},
				{Keyword: "помощь", Target: "help"},
			},
			DefaultNextState: "services",
			FallbackState:    "welcome",
		}},
		{"contacts", StateConfig{
			Prompt: "Предоставь контактную информацию: телефон, email, адрес. Заверши разговор вежливо.",
			Transitions: []Transition{
				{Keyword: "спасибо", Target: EndState},
				{Keyword: "пока", Target: EndState},
			},
			DefaultNextState: EndState,
			FallbackState:    "welcome",
		}},
		{EndState, StateConfig{
			Prompt:           "Попрощайся с пользователем и пожелай хорошего дня.",
			Transitions:      []Transition{},
			DefaultNextState: EndState,
		}},
	}

	def := &Definition{
		InitialState: "welcome",
		States:       make(map[string]StateConfig, len(states)),
		order:        make([]string, 0, len(states)),
	}
	for _, s := range states {
		def.States[s.name] = s.cfg
		def.order = append(def.order, s.name)
	}
	return def
}
