package issuance

import (
	"testing"

	"esdtscan/internal/codec"
	"esdtscan/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userAddress     = "erd1user"
	contractAddress = "erd1contract"
	systemAddress   = "erd1qqqqqqqqqqqqqqqpqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzllls8a5w6u"
	outerHash       = "7e1a3f4c"
)

func call(function string, args ...string) models.Bytes {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return models.Bytes(codec.EncodeCallData(function, raw...))
}

func scr(hash, prev, sender string, data models.Bytes) *models.ScResult {
	return &models.ScResult{
		Hash:           hash,
		PrevTxHash:     prev,
		OriginalTxHash: outerHash,
		Sender:         sender,
		Receiver:       contractAddress,
		Value:          models.NewBigInt(0),
		Data:           data,
	}
}

func tx(status string, results ...*models.ScResult) *models.TransactionOnNetwork {
	return &models.TransactionOnNetwork{
		Hash:                 outerHash,
		Status:               status,
		Sender:               userAddress,
		Receiver:             contractAddress,
		SmartContractResults: results,
	}
}

func burnRoleLogs(identifier string) *models.LogRecord {
	return &models.LogRecord{
		Address: systemAddress,
		Events: []*models.Event{{
			Address:    systemAddress,
			Identifier: EventESDTSetBurnRoleForAll,
			Topics:     []models.Bytes{models.Bytes(identifier)},
		}},
	}
}

// fungibleIssuance issueLpToken -> issue -> ESDTTransfer
func fungibleIssuance() *models.TransactionOnNetwork {
	t := tx(models.StatusSuccess,
		scr("a1", outerHash, contractAddress, call(VerbIssue, "EGLDMEXLP", "EGLDMEX", "\x03\xe8", "\x12",
			"canFreeze", "true", "canWipe", "true")),
		scr("a2", "a1", systemAddress, call(FunctionESDTTransfer, "EGLDMEX-95c6d5", "\x03\xe8", "\x00")),
		scr("a3", "a2", contractAddress, call("", "ok")),
	)
	t.Data = call("issueLpToken", "EGLDMEXLP")
	return t
}

func callbackIssuance(verb string, args []string, identifier string, trailing ...string) *models.TransactionOnNetwork {
	completion := append([]string{"\x00", identifier}, trailing...)
	return tx(models.StatusSuccess,
		scr("b1", outerHash, contractAddress, call(verb, args...)),
		scr("b2", "b1", systemAddress, call("", completion...)),
	)
}

func TestClassify_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		tx       *models.TransactionOnNetwork
		want     string
		kind     models.TokenKind
		verb     string
		initIdx  int
		complIdx int
	}{
		{
			name: "fungible issuance through ESDTTransfer",
			tx:   fungibleIssuance(),
			want: "EGLDMEX-95c6d5", kind: models.TokenKindFungible, verb: VerbIssue, initIdx: 0, complIdx: 1,
		},
		{
			name: "semi-fungible issuance",
			tx:   callbackIssuance(VerbIssueSemiFungible, []string{"DopeTest", "DOPETEST"}, "DOPETEST-77200c"),
			want: "DOPETEST-77200c", kind: models.TokenKindSemiFungible, verb: VerbIssueSemiFungible, initIdx: 0, complIdx: 1,
		},
		{
			name: "non-fungible issuance",
			tx:   callbackIssuance(VerbIssueNonFungible, []string{"genezys", "GEN"}, "GEN-868593"),
			want: "GEN-868593", kind: models.TokenKindNonFungible, verb: VerbIssueNonFungible, initIdx: 0, complIdx: 1,
		},
		{
			name: "meta issuance",
			tx: callbackIssuance(VerbRegisterMetaESDT, []string{"ATSAshSwapLPACVault", "AVASH", "\x12"},
				"AVASH-7d8b5d", "extra"),
			want: "AVASH-7d8b5d", kind: models.TokenKindMeta, verb: VerbRegisterMetaESDT, initIdx: 0, complIdx: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss, ok := Classify(tt.tx)
			require.True(t, ok)
			assert.Equal(t, tt.want, iss.Identifier)
			assert.Equal(t, tt.kind, iss.Kind)
			assert.Equal(t, tt.verb, iss.Verb)
			assert.Equal(t, tt.initIdx, iss.InitiatorIndex)
			assert.Equal(t, tt.complIdx, iss.CompletionIndex)

			id, ok := NewIssuedTokenIdentifier(tt.tx)
			require.True(t, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestClassify_SetSpecialRoleIsNotIssuance(t *testing.T) {
	setRole := scr("c1", outerHash, contractAddress,
		call(FunctionSetSpecialRole, "GEN-868593", "erd1contract", "ESDTRoleNFTCreate"))
	callback := scr("c2", "c1", systemAddress, call("", "\x00", "GEN-868593"))
	callback.Logs = burnRoleLogs("GEN-868593")
	transaction := tx(models.StatusSuccess, setRole, callback)

	_, ok := Classify(transaction)
	assert.False(t, ok)
	assert.Equal(t, []string{"GEN-868593"}, BurnRoleTokens(transaction))
}

func TestClassify_RegisterAndSetAllRolesThroughMultisig(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("d1", outerHash, "erd1multisig", call("performAction", "\x01")),
		scr("d2", "d1", "erd1multisig", call(VerbRegisterAndSetAllRoles, "TestCollection1", "TESTCOLL1", "NFT", "\x00")),
		scr("d3", "d2", systemAddress, call(FunctionESDTSetRole, "TESTCOLL1-5aa80c", "ESDTRoleNFTCreate")),
		scr("d4", "d2", systemAddress, call("", "\x00", "TESTCOLL1-5aa80c", "NFT")),
	)
	transaction.Logs = burnRoleLogs("TESTCOLL1-5aa80c")

	iss, ok := Classify(transaction)
	require.True(t, ok)
	assert.Equal(t, "TESTCOLL1-5aa80c", iss.Identifier)
	assert.Equal(t, models.TokenKindNonFungible, iss.Kind)
	assert.Equal(t, 1, iss.InitiatorIndex)
	assert.Equal(t, 3, iss.CompletionIndex)

	assert.Contains(t, BurnRoleTokens(transaction), iss.Identifier)
}

func TestClassify_RegisterAndSetAllRolesKinds(t *testing.T) {
	tests := []struct {
		tokenType string
		want      models.TokenKind
	}{
		{"FNG", models.TokenKindFungible},
		{"SFT", models.TokenKindSemiFungible},
		{"NFT", models.TokenKindNonFungible},
		{"META", models.TokenKindMeta},
		{"nft", models.TokenKindUnknown},
		{"", models.TokenKindUnknown},
	}

	for _, tt := range tests {
		transaction := callbackIssuance(VerbRegisterAndSetAllRoles, []string{"Name", "TICK", tt.tokenType}, "TICK-abcdef")
		iss, ok := Classify(transaction)
		require.True(t, ok, tt.tokenType)
		assert.Equal(t, tt.want, iss.Kind, tt.tokenType)
	}

	noTypeArg := callbackIssuance(VerbRegisterAndSetAllRoles, []string{"Name", "TICK"}, "TICK-abcdef")
	iss, ok := Classify(noTypeArg)
	require.True(t, ok)
	assert.Equal(t, models.TokenKindUnknown, iss.Kind)
}

func TestClassify_FailedTransaction(t *testing.T) {
	for _, status := range []string{models.StatusFail, models.StatusPending, models.StatusInvalid, "", "Success"} {
		transaction := fungibleIssuance()
		transaction.Status = status
		_, ok := Classify(transaction)
		assert.False(t, ok, status)
	}

	_, ok := Classify(nil)
	assert.False(t, ok)
}

func TestClassify_InitiatorWithoutCompletion(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("e1", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
		scr("e2", "e1", systemAddress, call("", "\x04", "user error")),
	)
	transaction.Logs = burnRoleLogs("GEN-868593")

	_, ok := Classify(transaction)
	assert.False(t, ok, "burn role events must not be used as a fallback")
}

func TestClassify_CompletionMustFollowInitiator(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("f2", "f1", systemAddress, call("", "\x00", "GEN-868593")),
		scr("f1", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
	)

	_, ok := Classify(transaction)
	assert.False(t, ok)
}

func TestClassify_CompletionMustReferenceInitiator(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("g1", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
		scr("g2", "other", systemAddress, call("", "\x00", "GEN-868593")),
	)

	_, ok := Classify(transaction)
	assert.False(t, ok)
}

func TestClassify_EmptyInitiatorHash(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
		scr("h2", "", systemAddress, call("", "\x00", "GEN-868593")),
	)

	_, ok := Classify(transaction)
	assert.False(t, ok)
}

func TestClassify_EarliestInitiatorWins(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("i1", outerHash, contractAddress, call(VerbIssueSemiFungible, "First", "FIRST")),
		scr("i2", outerHash, contractAddress, call(VerbIssueNonFungible, "Second", "SECOND")),
		scr("i3", "i2", systemAddress, call("", "\x00", "SECOND-222222")),
		scr("i4", "i1", systemAddress, call("", "\x00", "FIRST-111111")),
	)

	id, ok := NewIssuedTokenIdentifier(transaction)
	require.True(t, ok)
	assert.Equal(t, "FIRST-111111", id)

	swapped := tx(models.StatusSuccess,
		transaction.SmartContractResults[1],
		transaction.SmartContractResults[0],
		transaction.SmartContractResults[2],
		transaction.SmartContractResults[3],
	)
	id, ok = NewIssuedTokenIdentifier(swapped)
	require.True(t, ok)
	assert.Equal(t, "SECOND-222222", id)
}

func TestClassify_SkipsInitiatorWithoutCompletionForLaterOne(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("j1", outerHash, contractAddress, call(VerbIssueSemiFungible, "First", "FIRST")),
		scr("j2", outerHash, contractAddress, call(VerbRegisterMetaESDT, "Second", "SECOND", "\x12")),
		scr("j3", "j2", systemAddress, call("", "\x00", "SECOND-222222")),
	)

	iss, ok := Classify(transaction)
	require.True(t, ok)
	assert.Equal(t, "SECOND-222222", iss.Identifier)
	assert.Equal(t, 1, iss.InitiatorIndex)
}

func TestClassify_IssueFallsBackToCallback(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("k1", outerHash, contractAddress, call(VerbIssue, "Wrapped", "WEGLD", "\x01", "\x12")),
		scr("k2", "k1", systemAddress, call("", "\x00", "WEGLD-bd4d79")),
	)

	iss, ok := Classify(transaction)
	require.True(t, ok)
	assert.Equal(t, "WEGLD-bd4d79", iss.Identifier)
	assert.Equal(t, models.TokenKindFungible, iss.Kind)
}

func TestClassify_TransferIsOnlyCompletionForIssue(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("l1", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
		scr("l2", "l1", systemAddress, call(FunctionESDTTransfer, "GEN-868593", "\x01")),
	)

	_, ok := Classify(transaction)
	assert.False(t, ok)
}

func TestClassify_MalformedResultsAreSkipped(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("m0", outerHash, contractAddress, models.Bytes("issue@zz")),
		scr("m1", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
		scr("m2", "m1", systemAddress, models.Bytes("@00@XYZ")),
		scr("m3", "m1", systemAddress, models.Bytes("@00@")),
		scr("m4", "m1", systemAddress, call("", "\x00", "GEN-868593")),
	)
	transaction.SmartContractResults = append(transaction.SmartContractResults, nil)

	iss, ok := Classify(transaction)
	require.True(t, ok)
	assert.Equal(t, "GEN-868593", iss.Identifier)
	assert.Equal(t, 1, iss.InitiatorIndex)
	assert.Equal(t, 4, iss.CompletionIndex)
}

func TestClassify_CaseSensitiveVerbs(t *testing.T) {
	for _, verb := range []string{"Issue", "issuenonfungible", "RegisterMetaESDT", " issue"} {
		transaction := tx(models.StatusSuccess,
			scr("n1", outerHash, contractAddress, call(verb, "Name", "TICK")),
			scr("n2", "n1", systemAddress, call("", "\x00", "TICK-123456")),
		)
		_, ok := Classify(transaction)
		assert.False(t, ok, verb)
	}
}

func TestClassify_IdentifierPreservedVerbatim(t *testing.T) {
	transaction := callbackIssuance(VerbIssueNonFungible, []string{"odd", "odd"}, " odd-Token\n")

	id, ok := NewIssuedTokenIdentifier(transaction)
	require.True(t, ok)
	assert.Equal(t, " odd-Token\n", id)
}

func TestClassifier_SystemSCAddress(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("o1", outerHash, contractAddress, call(VerbIssueNonFungible, "genezys", "GEN")),
		scr("o2", "o1", "erd1impostor", call("", "\x00", "FAKE-000000")),
		scr("o3", "o1", systemAddress, call("", "\x00", "GEN-868593")),
	)

	id, ok := NewIssuedTokenIdentifier(transaction)
	require.True(t, ok)
	assert.Equal(t, "FAKE-000000", id)

	strict := NewClassifier(Options{SystemSCAddress: systemAddress})
	id, ok = strict.NewIssuedTokenIdentifier(transaction)
	require.True(t, ok)
	assert.Equal(t, "GEN-868593", id)
}

func TestClassify_OnlyRoleResults(t *testing.T) {
	transaction := tx(models.StatusSuccess,
		scr("p1", outerHash, contractAddress, call(FunctionSetSpecialRole, "GEN-868593", "erd1contract", "ESDTRoleNFTBurn")),
		scr("p2", "p1", systemAddress, call(FunctionESDTSetRole, "GEN-868593", "ESDTRoleNFTBurn")),
		scr("p3", "p1", systemAddress, call(EventESDTSetBurnRoleForAll, "GEN-868593")),
		scr("p4", "p1", systemAddress, call("", "\x00", "GEN-868593")),
		scr("p5", "p1", systemAddress, call(FunctionESDTTransfer, "GEN-868593", "\x01")),
	)

	_, ok := Classify(transaction)
	assert.False(t, ok)
}

func TestClassify_Deterministic(t *testing.T) {
	transaction := fungibleIssuance()
	first, ok1 := Classify(transaction)
	second, ok2 := Classify(transaction)

	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestClassify_UnrelatedReorderingKeepsResult(t *testing.T) {
	initiator := scr("q1", outerHash, contractAddress, call(VerbIssueSemiFungible, "DopeTest", "DOPETEST"))
	completion := scr("q2", "q1", systemAddress, call("", "\x00", "DOPETEST-77200c"))
	unrelatedA := scr("q3", outerHash, contractAddress, call("claimRewards", "\x01"))
	unrelatedB := scr("q4", outerHash, userAddress, call("", "ok"))

	orders := [][]*models.ScResult{
		{initiator, completion, unrelatedA, unrelatedB},
		{unrelatedA, initiator, unrelatedB, completion},
		{unrelatedB, unrelatedA, initiator, completion},
	}

	for _, order := range orders {
		id, ok := NewIssuedTokenIdentifier(tx(models.StatusSuccess, order...))
		require.True(t, ok)
		assert.Equal(t, "DOPETEST-77200c", id)
	}
}

func TestIsIssuanceVerb(t *testing.T) {
	for _, verb := range []string{VerbIssue, VerbIssueSemiFungible, VerbIssueNonFungible, VerbRegisterMetaESDT, VerbRegisterAndSetAllRoles} {
		assert.True(t, IsIssuanceVerb(verb), verb)
	}
	for _, fn := range []string{FunctionESDTTransfer, FunctionSetSpecialRole, FunctionESDTSetRole, EventESDTSetBurnRoleForAll, "", "issueLpToken"} {
		assert.False(t, IsIssuanceVerb(fn), fn)
	}
}

func TestBurnRoleTokens(t *testing.T) {
	transaction := fungibleIssuance()
	assert.Empty(t, BurnRoleTokens(transaction))
	assert.Nil(t, BurnRoleTokens(nil))

	transaction.Logs = &models.LogRecord{Events: []*models.Event{
		{Identifier: EventESDTSetBurnRoleForAll},
		{Identifier: "completedTxEvent", Topics: []models.Bytes{models.Bytes("x")}},
		{Identifier: EventESDTSetBurnRoleForAll, Topics: []models.Bytes{models.Bytes("EGLDMEX-95c6d5")}},
	}}
	transaction.SmartContractResults[1].Logs = burnRoleLogs("OTHER-000001")

	assert.Equal(t, []string{"EGLDMEX-95c6d5", "OTHER-000001"}, BurnRoleTokens(transaction))
}

func BenchmarkClassify(b *testing.B) {
	transaction := tx(models.StatusSuccess,
		scr("r1", outerHash, "erd1multisig", call("performAction", "\x01")),
		scr("r2", "r1", "erd1multisig", call(VerbRegisterAndSetAllRoles, "TestCollection1", "TESTCOLL1", "NFT", "\x00")),
		scr("r3", "r2", systemAddress, call(FunctionESDTSetRole, "TESTCOLL1-5aa80c", "ESDTRoleNFTCreate")),
		scr("r4", "r2", systemAddress, call("", "\x00", "TESTCOLL1-5aa80c")),
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Classify(transaction)
	}
}
