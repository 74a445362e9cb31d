package imap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"imapcore/internal/config"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-sasl"
)

type mockClient struct {
	mu    sync.Mutex
	calls []string

	listInfos    []*imap.MailboxInfo
	statusErr    map[string]error
	statusItems  map[imap.StatusItem]interface{}
	caps         map[string]bool
	searchResult []uint32
	searchBlock  chan struct{}
	fetchResults []*imap.Message
	storeUpdates int
	moveErr      error

	lastCriteria *imap.SearchCriteria
	loggedOut    bool
	terminated   bool
}

func (m *mockClient) record(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockClient) State() imap.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated || m.loggedOut {
		return imap.LogoutState
	}
	return imap.SelectedState
}
func (m *mockClient) Login(username, password string) error {
	m.record("LOGIN %s", username)
	return nil
}
func (m *mockClient) Authenticate(auth sasl.Client) error {
	mech, _, _ := auth.Start()
	m.record("AUTHENTICATE %s", mech)
	return nil
}
func (m *mockClient) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedOut = true
	return nil
}
func (m *mockClient) Terminate() error {
	m.mu.Lock()
	m.terminated = true
	block := m.searchBlock
	m.searchBlock = nil
	m.mu.Unlock()
	if block != nil {
		close(block)
	}
	return nil
}
func (m *mockClient) Support(cap string) (bool, error) {
	return m.caps[cap], nil
}
func (m *mockClient) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	m.record("SELECT %s", name)
	return &imap.MailboxStatus{Name: name, Messages: 3, UidNext: 10, UidValidity: 7}, nil
}
func (m *mockClient) Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error) {
	m.record("STATUS %s %v", name, items)
	if err := m.statusErr[name]; err != nil {
		return nil, err
	}
	return &imap.MailboxStatus{
		Name:        name,
		Messages:    5,
		Unseen:      2,
		UidNext:     11,
		UidValidity: 99,
		Items:       m.statusItems,
	}, nil
}
func (m *mockClient) List(ref, name string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	m.record("LIST")
	for _, info := range m.listInfos {
		ch <- info
	}
	return nil
}
func (m *mockClient) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	m.record("UID SEARCH")
	m.mu.Lock()
	m.lastCriteria = criteria
	block := m.searchBlock
	m.mu.Unlock()
	if block != nil {
		<-block
		return nil, errors.New("connection closed")
	}
	return m.searchResult, nil
}
func (m *mockClient) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	m.record("UID FETCH %s", seqset)
	for _, msg := range m.fetchResults {
		ch <- msg
	}
	return nil
}
func (m *mockClient) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error {
	defer close(ch)
	m.record("UID STORE %s %s %v", seqset, item, value)
	for i := 0; i < m.storeUpdates; i++ {
		ch <- &imap.Message{SeqNum: uint32(i + 1)}
	}
	return nil
}
func (m *mockClient) UidMove(seqset *imap.SeqSet, mailbox string) error {
	m.record("UID MOVE %s %s", seqset, mailbox)
	return m.moveErr
}
func (m *mockClient) UidCopy(seqset *imap.SeqSet, mailbox string) error {
	m.record("UID COPY %s %s", seqset, mailbox)
	return nil
}
func (m *mockClient) Append(mailbox string, flags []string, date time.Time, msg imap.Literal) error {
	m.record("APPEND %s %v %d", mailbox, flags, msg.Len())
	return nil
}
func (m *mockClient) Expunge(ch chan uint32) error {
	defer close(ch)
	m.record("EXPUNGE")
	ch <- 1
	return nil
}

func mockService(mock *mockClient) *Service {
	return &Service{Connector: func(ctx context.Context, cfg config.Config) (Client, error) {
		return mock, nil
	}}
}

func mockSession(mock *mockClient) *Session {
	return NewSession(mock, "mock.example.com", nil)
}

func expectCalls(t *testing.T, mock *mockClient, want []string) {
	t.Helper()
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if !reflect.DeepEqual(mock.calls, want) {
		t.Fatalf("unexpected calls:\n got  %q\n want %q", mock.calls, want)
	}
}

func TestServiceLogsOutAfterUse(t *testing.T) {
	mock := &mockClient{listInfos: []*imap.MailboxInfo{
		{Name: "INBOX", Delimiter: "/"},
		{Name: "Archive", Delimiter: "/"},
	}}
	svc := mockService(mock)

	summary, err := svc.TestConnection(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if summary != "Connected successfully. Found 2 folder(s)." {
		t.Fatalf("unexpected summary %q", summary)
	}
	if !mock.loggedOut {
		t.Fatalf("expected logout to be called")
	}
}

func TestListFoldersWithMock(t *testing.T) {
	mock := &mockClient{
		listInfos: []*imap.MailboxInfo{
			{Name: "INBOX", Delimiter: "/"},
			{Name: "[Gmail]", Delimiter: "/", Attributes: []string{imap.NoSelectAttr}},
			{Name: "[Gmail]/Trash", Delimiter: "/"},
			{Name: "Work/Entwürfe", Delimiter: "/", Attributes: []string{`\Drafts`}},
		},
		statusErr: map[string]error{"[Gmail]/Trash": errors.New("NO status unavailable")},
	}

	folders, err := mockSession(mock).ListFolders(context.Background())
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 4 {
		t.Fatalf("expected 4 folders, got %d", len(folders))
	}

	inbox := folders[0]
	if inbox.Exists != 5 || inbox.Unseen != 2 || inbox.Name != "INBOX" {
		t.Fatalf("unexpected inbox %+v", inbox)
	}
	if folders[1].Exists != 0 {
		t.Fatalf("noselect folder should not be counted: %+v", folders[1])
	}
	trash := folders[2]
	if trash.SpecialUse != `\Trash` || trash.Name != "Trash" || trash.Exists != 0 || trash.Unseen != 0 {
		t.Fatalf("unexpected trash %+v", trash)
	}
	drafts := folders[3]
	if drafts.Path != "Work/Entwürfe" || drafts.RawPath != "Work/Entw&APw-rfe" || drafts.Name != "Entwürfe" {
		t.Fatalf("unexpected folder names %+v", drafts)
	}
	if drafts.SpecialUse != `\Drafts` {
		t.Fatalf("expected drafts special use, got %q", drafts.SpecialUse)
	}

	for _, call := range mock.calls {
		if strings.HasPrefix(call, "STATUS [Gmail] ") {
			t.Fatalf("status issued for a \\Noselect folder: %q", call)
		}
	}
}

func TestFolderStatusReadsHighestModSeq(t *testing.T) {
	mock := &mockClient{
		caps:        map[string]bool{"CONDSTORE": true},
		statusItems: map[imap.StatusItem]interface{}{statusHighestModSeq: "8589934593"},
	}
	status, err := mockSession(mock).FolderStatus(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("folder status: %v", err)
	}
	want := FolderStatus{Folder: "INBOX", UIDValidity: 99, UIDNext: 11, Exists: 5, Unseen: 2, HighestModSeq: 8589934593}
	if status != want {
		t.Fatalf("expected %+v, got %+v", want, status)
	}
	if !strings.Contains(mock.calls[0], "HIGHESTMODSEQ") {
		t.Fatalf("expected HIGHESTMODSEQ to be requested: %q", mock.calls[0])
	}

	plain := &mockClient{}
	status, err = mockSession(plain).FolderStatus(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("folder status: %v", err)
	}
	if status.HighestModSeq != 0 || strings.Contains(plain.calls[0], "HIGHESTMODSEQ") {
		t.Fatalf("HIGHESTMODSEQ must not be requested without CONDSTORE")
	}
}

func TestNewUIDsDropsBoundary(t *testing.T) {
	mock := &mockClient{searchResult: []uint32{6}}
	session := mockSession(mock)

	uids, err := session.NewUIDs(context.Background(), "INBOX", 6)
	if err != nil {
		t.Fatalf("new uids: %v", err)
	}
	if len(uids) != 0 {
		t.Fatalf("expected no new uids, got %v", uids)
	}
	if got := mock.lastCriteria.Uid.String(); got != "7:*" {
		t.Fatalf("expected search for 7:*, got %q", got)
	}

	mock.searchResult = []uint32{9, 4, 7, 8}
	uids, err = session.NewUIDs(context.Background(), "INBOX", 6)
	if err != nil {
		t.Fatalf("new uids: %v", err)
	}
	if !reflect.DeepEqual(uids, []uint32{7, 8, 9}) {
		t.Fatalf("expected [7 8 9], got %v", uids)
	}
}

func TestNewUIDsAtMaximum(t *testing.T) {
	mock := &mockClient{}
	uids, err := mockSession(mock).NewUIDs(context.Background(), "INBOX", 1<<32-1)
	if err != nil || len(uids) != 0 {
		t.Fatalf("expected empty result, got %v (%v)", uids, err)
	}
	if len(mock.calls) != 0 {
		t.Fatalf("expected no commands, got %v", mock.calls)
	}
}

func TestAllUIDsSorted(t *testing.T) {
	mock := &mockClient{searchResult: []uint32{3, 1, 2}}
	uids, err := mockSession(mock).AllUIDs(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("all uids: %v", err)
	}
	if !reflect.DeepEqual(uids, []uint32{1, 2, 3}) {
		t.Fatalf("expected sorted uids, got %v", uids)
	}
}

func TestFetchMessageNotFound(t *testing.T) {
	mock := &mockClient{}
	_, err := mockSession(mock).FetchMessage(context.Background(), "Archive", 42)
	if KindOf(err) != KindNotFound || !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.UID != 42 || e.Folder != "Archive" {
		t.Fatalf("error should name uid and folder: %v", err)
	}
}

func TestFetchMessagesSkipsUnusableResponses(t *testing.T) {
	section := &imap.BodySectionName{}
	good := &imap.Message{
		Uid:   5,
		Flags: []string{imap.SeenFlag},
		Body:  map[*imap.BodySectionName]imap.Literal{section: literal("Subject: hello\r\n\r\nbody\r\n")},
	}
	noUID := &imap.Message{
		Body: map[*imap.BodySectionName]imap.Literal{section: literal("Subject: lost\r\n\r\nbody\r\n")},
	}
	noBody := &imap.Message{Uid: 6, Body: map[*imap.BodySectionName]imap.Literal{}}
	broken := &imap.Message{
		Uid:  7,
		Body: map[*imap.BodySectionName]imap.Literal{section: literal("no header here\r\n\r\nbody\r\n")},
	}
	mock := &mockClient{fetchResults: []*imap.Message{good, noUID, noBody, broken}}

	result, err := mockSession(mock).FetchMessages(context.Background(), "INBOX", "1:*")
	if err != nil {
		t.Fatalf("fetch messages: %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].UID != 5 || !result.Messages[0].IsRead {
		t.Fatalf("unexpected messages %+v", result.Messages)
	}
	if result.Status.UIDValidity != 7 || result.Status.UIDNext != 10 || result.Status.Exists != 3 {
		t.Fatalf("unexpected status %+v", result.Status)
	}
	expectCalls(t, mock, []string{"SELECT INBOX", "UID FETCH 1:*"})
}

func TestInvalidUIDSetIsConfigError(t *testing.T) {
	mock := &mockClient{}
	session := mockSession(mock)

	if _, err := session.FetchMessages(context.Background(), "INBOX", "abc"); KindOf(err) != KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if err := session.Move(context.Background(), "INBOX", "", "Archive"); KindOf(err) != KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
	if err := session.SetFlags(context.Background(), "INBOX", "1", AddFlags, nil); KindOf(err) != KindConfig {
		t.Fatalf("expected config error for empty flags, got %v", err)
	}
	if len(mock.calls) != 0 {
		t.Fatalf("expected no commands, got %v", mock.calls)
	}
}

func TestSetFlagsDrainsUpdates(t *testing.T) {
	mock := &mockClient{storeUpdates: 40}
	err := mockSession(mock).SetFlags(context.Background(), "INBOX", "1:40", RemoveFlags, []string{imap.SeenFlag})
	if err != nil {
		t.Fatalf("set flags: %v", err)
	}
	expectCalls(t, mock, []string{"SELECT INBOX", `UID STORE 1:40 -FLAGS [\Seen]`})
}

func TestMoveUsesMove(t *testing.T) {
	mock := &mockClient{caps: map[string]bool{"MOVE": true}}
	if err := mockSession(mock).Move(context.Background(), "INBOX", "4", "Archive"); err != nil {
		t.Fatalf("move: %v", err)
	}
	expectCalls(t, mock, []string{"SELECT INBOX", "UID MOVE 4 Archive"})
}

func TestMoveFallsBackToCopyStoreExpunge(t *testing.T) {
	mock := &mockClient{
		caps:    map[string]bool{"MOVE": true},
		moveErr: errors.New("NO [CANNOT] move refused"),
	}
	if err := mockSession(mock).Move(context.Background(), "INBOX", "4:5", "Archive"); err != nil {
		t.Fatalf("move: %v", err)
	}
	expectCalls(t, mock, []string{
		"SELECT INBOX",
		"UID MOVE 4:5 Archive",
		"UID COPY 4:5 Archive",
		`UID STORE 4:5 +FLAGS [\Deleted]`,
		"EXPUNGE",
	})
}

func TestMoveWithoutCapabilityCopiesOnce(t *testing.T) {
	mock := &mockClient{moveErr: errors.New("NO copy failed half way")}
	if err := mockSession(mock).Move(context.Background(), "INBOX", "7", "Archive"); err != nil {
		t.Fatalf("move: %v", err)
	}
	expectCalls(t, mock, []string{
		"SELECT INBOX",
		"UID COPY 7 Archive",
		`UID STORE 7 +FLAGS [\Deleted]`,
		"EXPUNGE",
	})
}

func TestDeleteStoresAndExpunges(t *testing.T) {
	mock := &mockClient{}
	if err := mockSession(mock).Delete(context.Background(), "Trash", "1,3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	expectCalls(t, mock, []string{"SELECT Trash", `UID STORE 1,3 +FLAGS [\Deleted]`, "EXPUNGE"})
}

func TestAppendDoesNotSelect(t *testing.T) {
	mock := &mockClient{}
	err := mockSession(mock).Append(context.Background(), "Drafts", []string{imap.DraftFlag}, []byte("Subject: x\r\n\r\n"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	expectCalls(t, mock, []string{`APPEND Drafts [\Draft] 14`})
}

func TestCancelTerminatesSession(t *testing.T) {
	mock := &mockClient{searchBlock: make(chan struct{})}
	session := mockSession(mock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := session.AllUIDs(ctx, "INBOX")
	if !errors.Is(err, context.Canceled) || KindOf(err) != KindTransport {
		t.Fatalf("expected cancelled transport error, got %v", err)
	}
	if !mock.terminated {
		t.Fatalf("expected connection to be terminated")
	}

	_, err = session.AllUIDs(context.Background(), "INBOX")
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("logout on a closed session: %v", err)
	}
}

func TestCollectToleratesUnclosedChannel(t *testing.T) {
	items, err := collect(func(ch chan int) error {
		ch <- 1
		return errors.New("failed before close")
	})
	if err == nil || len(items) != 1 {
		t.Fatalf("expected one item and an error, got %v (%v)", items, err)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: "UID FETCH", Host: "mail.example.com", Folder: "INBOX", UID: 9, Err: errors.New("gone")}
	want := "UID FETCH INBOX uid 9 on mail.example.com: not found: gone"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

type stringLiteral struct {
	*strings.Reader
}

func literal(s string) imap.Literal {
	return stringLiteral{strings.NewReader(s)}
}
