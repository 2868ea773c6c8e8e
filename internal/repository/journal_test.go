package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"glass-voice/internal/domain"
)

type fakeDynamo struct {
	getOut    *dynamodb.GetItemOutput
	getErr    error
	queryOut  *dynamodb.QueryOutput
	queryErr  error
	txErr     error
	lastGet   *dynamodb.GetItemInput
	lastQuery *dynamodb.QueryInput
	lastTx    *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTx = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func msgItem(sk, text, reply, intent string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": s("CONV#abc"), "SK": s(sk), "text": s(text), "answer": s(reply), "intent": s(intent),
	}
}

func mustJournal(t *testing.T, db *fakeDynamo) *Journal {
	t.Helper()
	j, err := New(db, "voice-journal")
	require.NoError(t, err)
	j.now = func() time.Time { return time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC) }
	return j
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestRecord(t *testing.T) {
	db := &fakeDynamo{}
	j := mustJournal(t, db)

	err := j.Record(context.Background(), domain.JournalEntry{
		ConversationID: "abc",
		Utterance:      "where is order 12",
		Reply:          "Order 12 is shipped.",
		Intent:         "check_order",
		Action:         "check_order",
		Turns:          4,
	})
	require.NoError(t, err)
	require.Len(t, db.lastTx.TransactItems, 2)

	msg := db.lastTx.TransactItems[0].Put.Item
	require.Equal(t, s("CONV#abc"), msg["PK"])
	require.Equal(t, s("MSG#2024-01-10T09:30:00Z"), msg["SK"])
	require.Equal(t, s("check_order"), msg["intent"])
	require.Equal(t, s("check_order"), msg["action"])
	require.Equal(t, s("complete"), msg["status"])
	require.NotNil(t, db.lastTx.TransactItems[0].Put.ConditionExpression)

	meta := db.lastTx.TransactItems[1].Put.Item
	require.Equal(t, s("META#"), meta["SK"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "4"}, meta["turns"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "1707471000"}, meta["ttl"])
}

func TestRecord_OmitsEmptyAction(t *testing.T) {
	db := &fakeDynamo{}
	j := mustJournal(t, db)
	require.NoError(t, j.Record(context.Background(), domain.JournalEntry{ConversationID: "abc", Utterance: "hi"}))
	_, ok := db.lastTx.TransactItems[0].Put.Item["action"]
	require.False(t, ok)
}

func TestRecord_Errors(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("throttled")}
	j := mustJournal(t, db)

	err := j.Record(context.Background(), domain.JournalEntry{ConversationID: "abc"})
	require.ErrorContains(t, err, "throttled")

	err = j.Record(context.Background(), domain.JournalEntry{})
	require.ErrorContains(t, err, "conversation id is required")
}

func TestHistory_Chronological(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		msgItem("MSG#2", "second", "b", "greeting"),
		msgItem("MSG#1", "first", "a", "place_order"),
	}}}
	j := mustJournal(t, db)

	msgs, err := j.History(context.Background(), "abc", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Text)
	require.Equal(t, "place_order", msgs[0].Intent)
	require.Equal(t, "abc", msgs[0].ConversationID)
	require.Equal(t, int32(defaultLimit), *db.lastQuery.Limit)
	require.False(t, *db.lastQuery.ScanIndexForward)
}

func TestHistory_Errors(t *testing.T) {
	j := mustJournal(t, &fakeDynamo{queryErr: errors.New("boom")})
	_, err := j.History(context.Background(), "abc", 5)
	require.ErrorContains(t, err, "History query")

	j = mustJournal(t, &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		{"PK": s("CONV#abc"), "SK": s("MSG#1")},
	}}})
	_, err = j.History(context.Background(), "abc", 5)
	require.ErrorContains(t, err, `missing attribute "text"`)
}

func TestTurnCount(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"turns": &types.AttributeValueMemberN{Value: "7"},
	}}}
	n, err := mustJournal(t, db).TurnCount(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.True(t, *db.lastGet.ConsistentRead)

	n, err = mustJournal(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}).TurnCount(context.Background(), "abc")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = mustJournal(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"turns": s("seven"),
	}}}).TurnCount(context.Background(), "abc")
	require.ErrorContains(t, err, "not a number")
}
