package wire

type Tag string

const (
	TagPing                 Tag = "ping"
	TagGetGamestate         Tag = "getGamestate"
	TagGamestate            Tag = "gs"
	TagEdition              Tag = "edition"
	TagFabled               Tag = "fabled"
	TagPlayer               Tag = "player"
	TagClaim                Tag = "claim"
	TagSwap                 Tag = "swap"
	TagMove                 Tag = "move"
	TagRemove               Tag = "remove"
	TagMarked               Tag = "marked"
	TagGamePhase            Tag = "gamePhase"
	TagDayCount             Tag = "dayCount"
	TagAllowSelfNaming      Tag = "allowSelfNaming"
	TagIsSecretVote         Tag = "isSecretVote"
	TagIsSecretVoteMode     Tag = "isSecretVoteMode"
	TagIsTextChatAllowed    Tag = "isTextChatAllowed"
	TagSetTimer             Tag = "setTimer"
	TagIsVoteHistoryAllowed Tag = "isVoteHistoryAllowed"
	TagVotingSpeed          Tag = "votingSpeed"
	TagClearRoles           Tag = "clearRoles"
	TagClearVoteHistory     Tag = "clearVoteHistory"
	TagIsVoteInProgress     Tag = "isVoteInProgress"
	TagNomination           Tag = "nomination"
	TagVote                 Tag = "vote"
	TagLock                 Tag = "lock"
	TagBye                  Tag = "bye"
	TagName                 Tag = "name"
	TagPronouns             Tag = "pronouns"
	TagLocale               Tag = "locale"
	TagVoteHistory          Tag = "voteHistory"
	TagChat                 Tag = "chat"
	TagGlobalChat           Tag = "globalChat"
	TagChatActivity         Tag = "chatActivity"
	TagClearChat            Tag = "clearChat"
	TagPlaySound            Tag = "playSound"
	TagDirect               Tag = "direct"
)

// HostID is the relay identity used by the storyteller.
const HostID = "host"

// LatencyPlaceholder is substituted by the relay with the recipient's measured
// latency on ping frames.
const LatencyPlaceholder = "latency"

// Close codes understood by both ends of the relay.
const (
	CloseIntentional = 1000
)
