package governance

import "time"

/* RiskTier is a coarse classification of how consequential an action is if executed wrongly */
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

/* Channel identifies the kind of side effect an action produces */
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelVoice     Channel = "voice"
	ChannelTask      Channel = "task"
	ChannelReminder  Channel = "reminder"
	ChannelQuery     Channel = "query"
	ChannelFinancial Channel = "financial"
)

/* Channels lists every known channel, in a stable order */
var Channels = []Channel{
	ChannelEmail,
	ChannelSMS,
	ChannelVoice,
	ChannelTask,
	ChannelReminder,
	ChannelQuery,
	ChannelFinancial,
}

/* RiskTiers lists every tier from least to most consequential */
var RiskTiers = []RiskTier{RiskLow, RiskMedium, RiskHigh, RiskCritical}

/* riskTable maps action types to risk tiers. The table is intentionally
   static; deployments tune behavior through the governance policy file,
   not by editing the classification. */
var riskTable = map[string]RiskTier{
	"query_data":       RiskLow,
	"create_reminder":  RiskLow,
	"create_task":      RiskMedium,
	"update_task":      RiskMedium,
	"send_email":       RiskHigh,
	"send_sms":         RiskHigh,
	"place_call":       RiskHigh,
	"update_financial": RiskCritical,
	"delete_account":   RiskCritical,
}

/* channelTable maps action types to the channel permission they require */
var channelTable = map[string]Channel{
	"query_data":       ChannelQuery,
	"create_reminder":  ChannelReminder,
	"create_task":      ChannelTask,
	"update_task":      ChannelTask,
	"send_email":       ChannelEmail,
	"send_sms":         ChannelSMS,
	"place_call":       ChannelVoice,
	"update_financial": ChannelFinancial,
	"delete_account":   ChannelFinancial,
}

/* Classify maps an action type to its risk tier. Unknown action types
   default to medium: fail toward caution, not toward permissiveness or
   toward blocking. */
func Classify(actionType string) RiskTier {
	if tier, ok := riskTable[actionType]; ok {
		return tier
	}
	return RiskMedium
}

/* ChannelFor maps an action type to the channel permission it requires.
   Unknown action types fall into the query channel, which defaults to
   disabled, so unrecognized actions cannot slip through. */
func ChannelFor(actionType string) Channel {
	if ch, ok := channelTable[actionType]; ok {
		return ch
	}
	return ChannelQuery
}

/* ExpiryWindow returns how long a pending action stays confirmable.
   Higher risk means a shorter window. */
func ExpiryWindow(tier RiskTier) time.Duration {
	switch tier {
	case RiskLow:
		return 15 * time.Minute
	case RiskMedium:
		return 10 * time.Minute
	case RiskHigh:
		return 5 * time.Minute
	case RiskCritical:
		return 3 * time.Minute
	default:
		return 10 * time.Minute
	}
}
