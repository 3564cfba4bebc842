package notifytcp

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/infodancer/campusmaild/internal/logging"
	"github.com/infodancer/campusmaild/internal/metrics"
	"github.com/infodancer/campusmaild/internal/notifysrv"
	"github.com/infodancer/campusmaild/internal/server"
	"github.com/infodancer/campusmaild/internal/sticky"
)

var argSplit = regexp.MustCompile(`,\s*`)

// Handler builds the notify-control TCP connection handler. udp may be nil
// if no UDP notification service is configured, matching the original's
// ability to run the TCP control interface standalone. adminUID, if
// non-nil, is the only uid permitted to use LIST and CLIENT, and to NOTIFY
// or CLEAR with uid 0 (broadcast); if nil, no uid is permitted to.
func Handler(store *sticky.Store, udp *notifysrv.Server, adminUID *int, validatorFactory ValidatorFactory, collector metrics.Collector) server.ConnectionHandler {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return func(ctx context.Context, conn *server.Connection) {
		handleConnection(ctx, conn, store, udp, adminUID, validatorFactory, collector)
	}
}

func handleConnection(ctx context.Context, conn *server.Connection, store *sticky.Store, udp *notifysrv.Server, adminUID *int, validatorFactory ValidatorFactory, collector metrics.Collector) {
	logger := logging.FromContext(ctx)
	collector.ConnectionOpened()
	defer collector.ConnectionClosed()

	h := &handler{
		ctx:       ctx,
		conn:      conn,
		store:     store,
		udp:       udp,
		adminUID:  adminUID,
		validator: validatorFactory,
		collector: collector,
		logger:    logger,
	}

	if err := h.writeLine("220 Notification server ready."); err != nil {
		return
	}

	sess := &session{}
	for {
		line, err := conn.Reader().ReadString('\n')
		if err != nil {
			if err != io.EOF {
				logger.Debug("notifytcp: read error", "error", err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		cmd := strings.ToUpper(parts[0])
		var args []string
		if len(parts) > 1 && parts[1] != "" {
			args = argSplit.Split(parts[1], -1)
		}

		if sess.validating && cmd != "PASE" && cmd != "PASS" {
			sess.abortValidate()
			if err := h.writeLine("503 Bad sequence of commands."); err != nil {
				return
			}
			continue
		}

		collector.CommandProcessed(cmd)
		quit, err := h.dispatch(sess, cmd, args)
		if err != nil {
			logger.Debug("notifytcp: write error", "error", err)
			return
		}
		if quit {
			return
		}
	}
}

type handler struct {
	ctx       context.Context
	conn      *server.Connection
	store     *sticky.Store
	udp       *notifysrv.Server
	adminUID  *int
	validator ValidatorFactory
	collector metrics.Collector
	logger    interface {
		Debug(msg string, args ...any)
	}
}

func (h *handler) writeLine(line string) error {
	if _, err := h.conn.Writer().WriteString(line + "\n"); err != nil {
		return err
	}
	return h.conn.Flush()
}

func (h *handler) isAdmin(sess *session) bool {
	return sess.authed && h.adminUID != nil && sess.authUID == *h.adminUID
}

func (h *handler) dispatch(sess *session, cmd string, args []string) (quit bool, err error) {
	switch cmd {
	case "QUIT":
		if werr := h.writeLine("221 Bye now!"); werr != nil {
			return true, werr
		}
		return true, nil

	case "NOOP":
		return false, h.writeLine("200 Nothing.")

	case "CLEAR":
		return false, h.cmdClear(sess, args)

	case "NOTIFY":
		return false, h.cmdNotify(sess, args)

	case "USER":
		return false, h.cmdUser(sess, args)

	case "PASE":
		return false, h.cmdPase(sess, args)

	case "PASS":
		return false, h.cmdPass(sess, args)

	case "CLIENT":
		return false, h.cmdClient(sess, args)

	case "LIST":
		return false, h.cmdList(sess, args)

	default:
		return false, h.writeLine(fmt.Sprintf("500 Unknown command: %s", cmd))
	}
}

func (h *handler) cmdClear(sess *session, args []string) error {
	if len(args) != 2 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	uid, err1 := strconv.Atoi(args[0])
	typ, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		return h.writeLine("501 Invalid argument.")
	}
	if uid == 0 && !h.isAdmin(sess) {
		return h.writeLine("554 Broadcast permission denied.")
	}
	if h.udp != nil {
		h.udp.ClearSticky(h.ctx, uid, typ)
	} else if h.store != nil {
		_ = h.store.ClearType(h.ctx, uid, typ)
	}
	return h.writeLine("200 Notifications cleared.")
}

func (h *handler) cmdNotify(sess *session, args []string) error {
	if len(args) != 5 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	length, e1 := strconv.Atoi(args[0])
	uid, e2 := strconv.Atoi(args[1])
	typ, e3 := strconv.Atoi(args[2])
	msgid, e4 := strconv.Atoi(args[3])
	stickyFlag, e5 := strconv.Atoi(args[4])
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
		return h.writeLine("501 Invalid argument.")
	}

	var data []byte
	if length > 0 {
		data = make([]byte, length)
		if _, err := io.ReadFull(h.conn.Reader(), data); err != nil {
			return err
		}
	}

	if uid == 0 && !h.isAdmin(sess) {
		return h.writeLine("554 Broadcast permission denied.")
	}

	notice := notifysrv.Notice{UID: uid, Type: typ, MsgID: msgid, Sticky: stickyFlag != 0, Data: data}
	if h.udp != nil {
		if err := h.udp.Post(h.ctx, notice); err != nil {
			h.logger.Debug("notifytcp: post failed", "error", err)
		}
	} else if notice.Sticky && h.store != nil {
		_ = h.store.Insert(h.ctx, uid, typ, msgid, data)
	}
	return h.writeLine("200 Ok.")
}

func (h *handler) cmdUser(sess *session, args []string) error {
	if len(args) != 1 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	sess.abortValidate()
	challenge, err := sess.beginValidate(h.ctx, h.validator, args[0])
	if err != nil {
		return h.writeLine("450 Name directory unavailable.")
	}
	return h.writeLine("300 " + challenge)
}

var octalResponse = regexp.MustCompile(`^[0-7]{24}$`)

func (h *handler) cmdPase(sess *session, args []string) error {
	if len(args) != 1 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	if !octalResponse.MatchString(args[0]) {
		return h.writeLine("501 Invalid argument.")
	}
	return h.completeAuth(sess, args[0])
}

func (h *handler) cmdPass(sess *session, args []string) error {
	if len(args) != 1 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	if len(args[0]) > 8 {
		return h.writeLine("501 Invalid argument.")
	}
	return h.completeAuth(sess, args[0])
}

func (h *handler) completeAuth(sess *session, response string) error {
	record, err := sess.completeValidate(h.ctx, response)
	if err != nil {
		h.collector.AuthAttempt("notify", false)
		return h.writeLine(fmt.Sprintf("551 %s", err))
	}
	sess.authed = true
	sess.authUID = record.UID
	h.collector.AuthAttempt("notify", true)
	return h.writeLine("200 User validated.")
}

func (h *handler) cmdClient(sess *session, args []string) error {
	if !h.isAdmin(sess) {
		return h.writeLine("554 Permission denied.")
	}
	if len(args) < 4 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	uid, err := strconv.Atoi(args[0])
	if err != nil {
		return h.writeLine("501 Invalid argument.")
	}
	ip := args[1]
	port, err := strconv.Atoi(args[2])
	if err != nil {
		return h.writeLine("501 Invalid argument.")
	}
	svcs := make([]int, 0, len(args)-3)
	for _, raw := range args[3:] {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return h.writeLine("501 Invalid argument.")
		}
		svcs = append(svcs, code)
	}
	if h.udp != nil {
		h.udp.AddClient(uid, ip, port, svcs)
	}
	return h.writeLine("200 Ok.")
}

func (h *handler) cmdList(sess *session, args []string) error {
	if !h.isAdmin(sess) {
		return h.writeLine("554 Permission denied.")
	}
	if len(args) != 1 {
		return h.writeLine("501 Wrong number of arguments.")
	}
	key := strings.ToLower(args[0])
	if key != "notices" && key != "clients" && key != "all" {
		return h.writeLine("501 Invalid list selector.")
	}

	if key == "notices" || key == "all" {
		var notices []sticky.Notice
		if h.store != nil {
			var err error
			notices, err = h.store.Notices(h.ctx)
			if err != nil {
				return h.writeLine("451 Failed to list notices.")
			}
		}
		if err := h.writeLine(fmt.Sprintf("101 %d", len(notices))); err != nil {
			return err
		}
		for _, n := range notices {
			stickyDigit := "1"
			escaped := strings.ReplaceAll(string(n.Data), `"`, `""`)
			line := fmt.Sprintf("110 %d,%d,%d,%s,\"%s\"", n.UID, n.Type, n.MsgID, stickyDigit, escaped)
			if err := h.writeLine(line); err != nil {
				return err
			}
		}
		if err := h.writeLine("200 Ok."); err != nil {
			return err
		}
	}
	if key == "clients" || key == "all" {
		var clients []*notifysrv.Client
		if h.udp != nil {
			clients = h.udp.Clients()
		}
		if err := h.writeLine(fmt.Sprintf("101 %d", len(clients))); err != nil {
			return err
		}
		for _, c := range clients {
			svcStrs := make([]string, len(c.Svcs))
			for i, s := range c.Svcs {
				svcStrs[i] = strconv.Itoa(s)
			}
			line := fmt.Sprintf("110 %d,%s,%d,%s %d", c.UID, c.IP, c.Port, strings.Join(svcStrs, ","), int(c.Age().Seconds()))
			if err := h.writeLine(line); err != nil {
				return err
			}
		}
		if err := h.writeLine("200 Ok."); err != nil {
			return err
		}
	}
	return nil
}

