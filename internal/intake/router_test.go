package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/laserman120/discord-bridge/internal/log"
	"github.com/laserman120/discord-bridge/internal/model"

	kgo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct{ tasks []model.Task }

func (q *recordingQueue) Enqueue(ctx context.Context, task model.Task) {
	q.tasks = append(q.tasks, task)
}

func handlers(tasks []model.Task) []model.HandlerName {
	out := make([]model.HandlerName, len(tasks))
	for i, t := range tasks {
		out[i] = t.Handler
	}
	return out
}

func TestTasksFanOut(t *testing.T) {
	post := &model.Ref{ID: "t3_a"}
	comment := &model.Ref{ID: "t1_b"}
	cases := []struct {
		name string
		ev   Event
		want []model.HandlerName
	}{
		{
			"mod action on content",
			Event{Payload: model.Payload{Kind: model.EventModAction, Action: "removelink", TargetPost: post}},
			[]model.HandlerName{model.HandlerModQueue, model.HandlerStateSync, model.HandlerRemoval, model.HandlerRemovalReason, model.HandlerModLog, model.HandlerModAbuse},
		},
		{
			"mod action on a user",
			Event{Payload: model.Payload{Kind: model.EventModAction, Action: "banuser", TargetUser: &model.UserRef{ID: "t2_u", Name: "u"}}},
			[]model.HandlerName{model.HandlerModLog, model.HandlerModAbuse},
		},
		{
			"lock needs an update",
			Event{Payload: model.Payload{Kind: model.EventModAction, Action: "lock", TargetPost: post}},
			[]model.HandlerName{model.HandlerModQueue, model.HandlerStateSync, model.HandlerRemoval, model.HandlerRemovalReason, model.HandlerModLog, model.HandlerModAbuse, model.HandlerUpdate},
		},
		{
			"post submit",
			Event{Payload: model.Payload{Kind: model.EventPostSubmit}, Post: post},
			[]model.HandlerName{model.HandlerNewPost, model.HandlerPublicPost, model.HandlerFlairWatch, model.HandlerModActivity, model.HandlerModQueue, model.HandlerReport},
		},
		{
			"comment submit",
			Event{Payload: model.Payload{Kind: model.EventCommentSubmit}, Comment: comment},
			[]model.HandlerName{model.HandlerModQueue, model.HandlerReport, model.HandlerFlairWatch, model.HandlerModActivity},
		},
		{
			"post delete",
			Event{Payload: model.Payload{Kind: model.EventPostDelete, PostID: "t3_a"}},
			[]model.HandlerName{model.HandlerModQueue, model.HandlerDeletion},
		},
		{
			"modmail",
			Event{Payload: model.Payload{Kind: model.EventModMail, ConversationID: "ModmailConversation_x"}},
			[]model.HandlerName{model.HandlerModMail},
		},
		{
			"comment report",
			Event{Payload: model.Payload{Kind: model.EventCommentReport}, Comment: comment},
			[]model.HandlerName{model.HandlerReport, model.HandlerModQueue},
		},
		{
			"flair update",
			Event{Payload: model.Payload{Kind: model.EventPostFlairUpdate}, Post: post},
			[]model.HandlerName{model.HandlerUpdate},
		},
		{
			"submit without content",
			Event{Payload: model.Payload{Kind: model.EventPostSubmit}},
			[]model.HandlerName{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, handlers(Tasks(tc.ev)))
		})
	}
}

func TestTasksCarryContentID(t *testing.T) {
	tasks := Tasks(Event{Payload: model.Payload{Kind: model.EventCommentSubmit}, Comment: &model.Ref{ID: "t1_b"}})
	require.NotEmpty(t, tasks)
	for _, task := range tasks {
		assert.Equal(t, "t1_b", task.Payload.ContentID())
	}

	tasks = Tasks(Event{Payload: model.Payload{Kind: model.EventPostUpdate}, Post: &model.Ref{ID: "t3_a"}})
	require.Len(t, tasks, 1)
	assert.Equal(t, "t3_a", tasks[0].Payload.ContentID())
}

func TestRouteEnqueues(t *testing.T) {
	q := &recordingQueue{}
	r := NewRouter(q, log.NewNop())
	tasks, err := r.Route(context.Background(), Event{Payload: model.Payload{Kind: model.EventModMail, ConversationID: "x"}})
	require.NoError(t, err)
	assert.Equal(t, tasks, q.tasks)

	_, err = r.Route(context.Background(), Event{})
	assert.ErrorIs(t, err, ErrEmptyEvent)
}

func TestValidate(t *testing.T) {
	ok := Event{Payload: model.Payload{Kind: model.EventModMail}}
	assert.NoError(t, Validate([]Event{ok, ok}))
	assert.ErrorIs(t, Validate([]Event{ok, {}}), ErrEmptyEvent)
}

func TestDecodeEvents(t *testing.T) {
	one, err := DecodeEvents([]byte(`{"type":"PostSubmit","post":{"id":"t3_a"}}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "t3_a", one[0].Post.ID)

	many, err := DecodeEvents([]byte(` [{"type":"ModMail","conversationId":"c"},{"type":"PostDelete","postId":"t3_a"}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, model.EventPostDelete, many[1].Kind)

	_, err = DecodeEvents([]byte(`{nope`))
	assert.Error(t, err)
}

type fakeReader struct {
	msgs      []kgo.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kgo.Message, error) {
	if len(f.msgs) == 0 {
		return kgo.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kgo.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestKafkaConsumerCommitsEverything(t *testing.T) {
	q := &recordingQueue{}
	reader := &fakeReader{msgs: []kgo.Message{
		{Offset: 1, Value: []byte(`{"type":"ModMail","conversationId":"c"}`)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Value: []byte(`{"type":"PostReport","post":{"id":"t3_a"}}`)},
	}}
	c := &KafkaConsumer{reader: reader, router: NewRouter(q, log.NewNop()), logger: log.NewNop()}

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	assert.Equal(t, []model.HandlerName{model.HandlerModMail, model.HandlerReport, model.HandlerModQueue}, handlers(q.tasks))
}

func TestKafkaConsumerStopsOnReaderError(t *testing.T) {
	c := &KafkaConsumer{reader: &erroringReader{}, router: NewRouter(&recordingQueue{}, log.NewNop()), logger: log.NewNop()}
	assert.Error(t, c.Run(context.Background()))
}

type erroringReader struct{ fakeReader }

func (e *erroringReader) FetchMessage(ctx context.Context) (kgo.Message, error) {
	return kgo.Message{}, errors.New("broker unavailable")
}
