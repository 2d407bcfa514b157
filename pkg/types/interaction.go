package types

import "fmt"

// InteractionEvent is a single interaction between exactly two entities, as
// classified by the external NLP collaborator. Events are ephemeral: the
// engine consumes each one exactly once and persists only its effect on
// entity and edge state.
type InteractionEvent struct {
	// Participants holds exactly two entity IDs. The first entry is treated
	// as the initiator of the interaction.
	Participants []string `json:"participants"`

	Valence    float64 `json:"valence"`     // Emotional valence in [-1,1]
	Intensity  float64 `json:"intensity"`   // Interaction intensity in [0,1]
	ContextTag string  `json:"context_tag"` // Free-form classification (e.g. "argument", "banter")
}

// Validate checks the event against the engine's input contract. Malformed
// events are rejected with ErrValidation before any state mutation.
func (ev *InteractionEvent) Validate() error {
	if len(ev.Participants) != 2 {
		return fmt.Errorf("%w: interaction requires exactly 2 participants, got %d", ErrValidation, len(ev.Participants))
	}
	if ev.Participants[0] == "" || ev.Participants[1] == "" {
		return fmt.Errorf("%w: participant IDs must be non-empty", ErrValidation)
	}
	if ev.Participants[0] == ev.Participants[1] {
		return fmt.Errorf("%w: participants must be distinct, got %q twice", ErrValidation, ev.Participants[0])
	}
	if ev.Valence < -1.0 || ev.Valence > 1.0 || ev.Valence != ev.Valence {
		return fmt.Errorf("%w: valence must be in [-1,1], got %v", ErrValidation, ev.Valence)
	}
	if ev.Intensity < 0.0 || ev.Intensity > 1.0 || ev.Intensity != ev.Intensity {
		return fmt.Errorf("%w: intensity must be in [0,1], got %v", ErrValidation, ev.Intensity)
	}
	return nil
}

// Initiator returns the entity ID that initiated the interaction.
// Only valid after Validate has succeeded.
func (ev *InteractionEvent) Initiator() string {
	return ev.Participants[0]
}

// Responder returns the non-initiating participant.
// Only valid after Validate has succeeded.
func (ev *InteractionEvent) Responder() string {
	return ev.Participants[1]
}
