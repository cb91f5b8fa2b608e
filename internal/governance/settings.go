package governance

/* UserSettings holds a single user's agent preferences. Preferences are
   not guarantees: the team policy can restrict them but never the other
   way around. Nil-able pointers distinguish "unset" from explicit false/0. */
type UserSettings struct {
	ActionsEnabled       *bool                `json:"actions_enabled,omitempty"`
	ChannelPermission    map[Channel]bool     `json:"channel_permission,omitempty"`
	ConfidenceThreshold  *float64             `json:"confidence_threshold,omitempty"`
	AutoApprove          map[RiskTier]bool    `json:"auto_approve,omitempty"`
	RequiredConfirmation map[Channel]bool     `json:"required_confirmation,omitempty"`
}

/* TeamPolicy is the ceiling for permissions and the floor for thresholds
   and confirmation that member preferences cannot bypass. Mutable by team
   admins only. */
type TeamPolicy struct {
	ActionsEnabled       *bool             `json:"actions_enabled,omitempty"`
	ChannelPermission    map[Channel]bool  `json:"channel_permission,omitempty"`
	MinimumThreshold     *float64          `json:"minimum_threshold,omitempty"`
	AllowAutoApprove     map[RiskTier]bool `json:"allow_auto_approve,omitempty"`
	RequiredConfirmation *bool             `json:"required_confirmation,omitempty"`
}

/* SystemDefaults is what a user gets when they have saved nothing. The
   defaults fail closed: no actions, no channels, only low-risk
   auto-approval once actions are turned on. */
type SystemDefaults struct {
	ActionsEnabled      bool
	ChannelPermission   map[Channel]bool
	ConfidenceThreshold float64
	AutoApprove         map[RiskTier]bool
}

/* DefaultSystemDefaults returns the documented fail-closed defaults */
func DefaultSystemDefaults() SystemDefaults {
	return SystemDefaults{
		ActionsEnabled:      false,
		ChannelPermission:   map[Channel]bool{},
		ConfidenceThreshold: 0.70,
		AutoApprove:         map[RiskTier]bool{RiskLow: true},
	}
}

/* EffectiveSettings is the single authorization profile obtained after
   merging user preferences, team policy, and system defaults. It is
   derived, never persisted, and recomputed on every decision. */
type EffectiveSettings struct {
	ActionsEnabled       bool              `json:"actions_enabled"`
	ChannelPermission    map[Channel]bool  `json:"channel_permission"`
	ConfidenceThreshold  float64           `json:"confidence_threshold"`
	AutoApprove          map[RiskTier]bool `json:"auto_approve"`
	ConfirmationRequired map[Channel]bool  `json:"confirmation_required"`
}

/* Resolve merges user settings and team policy into one effective profile.
   Either input may be nil: a missing team policy imposes no restriction,
   missing user settings fall back to the system defaults.

   Merge rules:
     - capabilities: user AND team (restrict)
     - threshold: max(user ?? default, teamMin ?? 0) (floor the user cannot lower)
     - auto-approve: user AND team, critical always false
     - confirmation required: user OR team (either party can force a check)

   The OR on confirmation is the single asymmetry: capability merges
   restrict, confirmation merges enforce. */
func Resolve(user *UserSettings, team *TeamPolicy, defaults SystemDefaults) EffectiveSettings {
	eff := EffectiveSettings{
		ChannelPermission:    make(map[Channel]bool, len(Channels)),
		AutoApprove:          make(map[RiskTier]bool, len(RiskTiers)),
		ConfirmationRequired: make(map[Channel]bool, len(Channels)),
	}

	userEnabled := defaults.ActionsEnabled
	if user != nil && user.ActionsEnabled != nil {
		userEnabled = *user.ActionsEnabled
	}
	teamEnabled := true
	if team != nil && team.ActionsEnabled != nil {
		teamEnabled = *team.ActionsEnabled
	}
	eff.ActionsEnabled = userEnabled && teamEnabled

	for _, ch := range Channels {
		userAllows := defaults.ChannelPermission[ch]
		if user != nil && user.ChannelPermission != nil {
			if v, ok := user.ChannelPermission[ch]; ok {
				userAllows = v
			}
		}
		teamAllows := true
		if team != nil && team.ChannelPermission != nil {
			if v, ok := team.ChannelPermission[ch]; ok {
				teamAllows = v
			}
		}
		eff.ChannelPermission[ch] = userAllows && teamAllows
	}

	userThreshold := defaults.ConfidenceThreshold
	if user != nil && user.ConfidenceThreshold != nil {
		userThreshold = *user.ConfidenceThreshold
	}
	teamMin := 0.0
	if team != nil && team.MinimumThreshold != nil {
		teamMin = *team.MinimumThreshold
	}
	eff.ConfidenceThreshold = userThreshold
	if teamMin > eff.ConfidenceThreshold {
		eff.ConfidenceThreshold = teamMin
	}

	for _, tier := range RiskTiers {
		if tier == RiskCritical {
			// Never auto-approved, regardless of inputs.
			eff.AutoApprove[tier] = false
			continue
		}
		userAuto := defaults.AutoApprove[tier]
		if user != nil && user.AutoApprove != nil {
			if v, ok := user.AutoApprove[tier]; ok {
				userAuto = v
			}
		}
		teamAuto := true
		if team != nil && team.AllowAutoApprove != nil {
			if v, ok := team.AllowAutoApprove[tier]; ok {
				teamAuto = v
			}
		}
		eff.AutoApprove[tier] = userAuto && teamAuto
	}

	teamRequires := false
	if team != nil && team.RequiredConfirmation != nil {
		teamRequires = *team.RequiredConfirmation
	}
	for _, ch := range Channels {
		userRequires := false
		if user != nil && user.RequiredConfirmation != nil {
			userRequires = user.RequiredConfirmation[ch]
		}
		eff.ConfirmationRequired[ch] = userRequires || teamRequires
	}

	return eff
}
