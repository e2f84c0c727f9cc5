package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// IMAPOptions configure an IMAPSource.
type IMAPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Inbox              string
	ProcessedFolder    string
}

// IMAPSource selects the inbox, fetches messages not flagged \Deleted and marks a message
// processed by moving it to the processed folder. Message keys are UIDs.
type IMAPSource struct {
	opts   IMAPOptions
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// NewIMAPSource validates opts; the connection is opened lazily by FetchUnprocessed.
func NewIMAPSource(opts IMAPOptions, logger *slog.Logger) (*IMAPSource, error) {
	if opts.Host == "" {
		return nil, common.ConfigErrorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, common.ConfigErrorf("imap port must be positive")
	}
	if opts.Inbox == "" {
		opts.Inbox = "INBOX"
	}
	if opts.ProcessedFolder == "" {
		opts.ProcessedFolder = "Processed"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IMAPSource{opts: opts, logger: logger}, nil
}

func (s *IMAPSource) dial(ctx context.Context) (*imapclient.Client, error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}
	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	if s.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	if err := s.ensureMailbox(client, s.opts.ProcessedFolder); err != nil {
		_ = client.Close()
		return nil, err
	}
	if _, err := client.Select(s.opts.Inbox, nil).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select %s: %w", s.opts.Inbox, err)
	}

	common.LoggerFromContext(ctx, s.logger).Debug("mailbox.imap.connected",
		"address", address,
		"user", s.opts.Username,
		"inbox", s.opts.Inbox,
		"tls", s.opts.UseTLS,
	)
	return client, nil
}

func (s *IMAPSource) ensureMailbox(client *imapclient.Client, name string) error {
	if err := client.Create(name, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			return nil
		}
		return fmt.Errorf("create mailbox %s: %w", name, err)
	}
	s.logger.Info("mailbox.imap.folder_created", "mailbox", name)
	return nil
}

func (s *IMAPSource) conn(ctx context.Context) (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// FetchUnprocessed searches the inbox for NOT DELETED and fetches the full bodies without
// setting \Seen.
func (s *IMAPSource) FetchUnprocessed(ctx context.Context) ([]Message, error) {
	start := time.Now()
	log := common.LoggerFromContext(ctx, s.logger)

	client, err := s.conn(ctx)
	if err != nil {
		return nil, common.NewTransportError("connect", err)
	}

	criteria := &imapv2.SearchCriteria{NotFlag: []imapv2.Flag{imapv2.FlagDeleted}}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, common.NewTransportError("search inbox", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		log.Info("mailbox.imap.fetched", "unprocessed", 0, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, nil
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	fetchOpts := &imapv2.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}
	bufs, err := client.Fetch(imapv2.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, common.NewTransportError("fetch messages", err)
	}

	out := make([]Message, 0, len(bufs))
	for _, b := range bufs {
		raw := b.FindBodySection(section)
		if raw == nil {
			log.Warn("mailbox.imap.empty_body", "uid", uint32(b.UID))
			continue
		}
		key := strconv.FormatUint(uint64(b.UID), 10)
		id, date := headerInfo(raw)
		if id == "" {
			id = "uid:" + key
		}
		if date.IsZero() {
			date = b.InternalDate
		}
		out = append(out, Message{ID: id, Key: key, Raw: raw, ReceivedAt: date})
	}

	log.Info("mailbox.imap.fetched",
		"inbox", s.opts.Inbox,
		"unprocessed", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// MarkProcessed moves the message to the processed folder.
func (s *IMAPSource) MarkProcessed(ctx context.Context, msg Message) error {
	uid, err := strconv.ParseUint(msg.Key, 10, 32)
	if err != nil {
		return fmt.Errorf("message key %q is not a uid: %w", msg.Key, err)
	}
	client, err := s.conn(ctx)
	if err != nil {
		return common.NewTransportError("connect", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := client.Move(imapv2.UIDSetNum(imapv2.UID(uid)), s.opts.ProcessedFolder).Wait(); err != nil {
		return common.NewTransportError("move to "+s.opts.ProcessedFolder, err)
	}
	common.LoggerFromContext(ctx, s.logger).Info("mailbox.imap.moved",
		"uid", uid,
		"folder", s.opts.ProcessedFolder,
	)
	return nil
}

// Close logs out and closes the connection.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Warn("mailbox.imap.logout_failed", "error", err)
	}
	err := s.client.Close()
	s.client = nil
	return err
}
