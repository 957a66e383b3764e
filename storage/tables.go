package storage

// The logical tables named in §6, each a key prefix within the single
// logical.Storage keyspace. Policy, proposal, shared-key and event entries
// are keyed by hex-encoded 32-byte ids; frozen_utxos is keyed by outpoint,
// labels by target, and timechain by the hex-encoded descriptor string.
const (
	policiesPrefix            = "policies/"
	nostrPublicKeysPrefix     = "nostr_public_keys/" // policy_id/ -> []pubkey
	sharedKeysPrefix          = "shared_keys/"
	proposalsPrefix           = "proposals/"
	approvedProposalsPrefix  = "approved_proposals/"
	completedProposalsPrefix = "completed_proposals/"
	relaysPrefix              = "relays/"
	eventsPrefix              = "events/"
	notificationsPrefix       = "notifications/"
	signersPrefix             = "signers/"
	mySharedSignersPrefix     = "my_shared_signers/"
	sharedSignersPrefix       = "shared_signers/"
	nostrConnectSessionsPrefix = "nostr_connect_sessions/"
	nostrConnectRequestsPrefix = "nostr_connect_requests/"
	labelsPrefix              = "labels/"
	frozenUTXOsPrefix         = "frozen_utxos/"
	timechainPrefix           = "timechain/" // descriptor -> bitcoin-index blob
	contactsPrefix            = "contacts/"
	metadataPrefix            = "metadata/"
)
