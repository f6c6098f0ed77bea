package remote

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"guardian-go/internal/guardian"
	"guardian-go/internal/model"
)

// ExchangePath is the websocket endpoint served by Server.
const ExchangePath = "/v1/exchange"

// existenceChecker is implemented by stores that can test for a blob
// without fetching it.
type existenceChecker interface {
	Has(ref model.BlobIdentifier) (bool, error)
}

// Server answers exchanges against a local repository and blob store.
// Calls may only touch blobs owned by the calling user. When tokens is
// non-empty every call must carry the bearer token of its user.
type Server struct {
	backups guardian.BackupRepository
	blobs   guardian.BlobStore
	encoder guardian.EncodingService
	tokens  map[string]string
	logger  guardian.Logger
	router  *mux.Router
}

// NewServer creates a server. tokens maps user ids to bearer tokens.
func NewServer(backups guardian.BackupRepository, blobs guardian.BlobStore, encoder guardian.EncodingService, tokens map[string]string, logger guardian.Logger) *Server {
	s := &Server{
		backups: backups,
		blobs:   blobs,
		encoder: encoder,
		tokens:  tokens,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.router.HandleFunc(ExchangePath, s.handleExchange).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)
	ctx := r.Context()

	_, data, err := conn.Read(ctx)
	if err != nil {
		s.logger.Warn("reading call failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	_, body, err := conn.Reader(ctx)
	if err != nil {
		s.logger.Warn("reading call blob failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	var call Call
	var resp *Response
	var out guardian.BlobSource
	if err := s.encoder.Decode(data, &call); err != nil {
		resp = errorResponse(err)
	} else if err := s.authorize(r, &call); err != nil {
		resp = errorResponse(err)
	} else {
		in := guardian.NewReaderBlob(io.NopCloser(body), call.BlobLength)
		resp, out = s.dispatch(&call, in)
	}
	// The request blob must be consumed before the connection can close.
	io.Copy(io.Discard, body)

	if resp.Status != StatusOK {
		s.logger.Info("call failed", "kind", call.Kind, "user", call.User, "status", resp.Status, "message", resp.Message)
	} else {
		s.logger.Debug("call served", "kind", call.Kind, "user", call.User)
	}

	if err := s.respond(ctx, conn, resp, out); err != nil {
		s.logger.Warn("writing response failed", "kind", call.Kind, "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) respond(ctx context.Context, conn *websocket.Conn, resp *Response, out guardian.BlobSource) error {
	if out != nil {
		defer out.Close()
		resp.BlobLength = out.TotalLength()
	}
	data, err := s.encoder.Encode(resp)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return err
	}
	return writeBlob(ctx, conn, out)
}

// authorize checks the bearer token of the calling user.
func (s *Server) authorize(r *http.Request, call *Call) error {
	if call.User == "" {
		return fmt.Errorf("call without user: %w", model.ErrPermissionDenied)
	}
	if len(s.tokens) == 0 {
		return nil
	}
	want, ok := s.tokens[string(call.User)]
	got, hasBearer := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || !hasBearer || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return fmt.Errorf("user %s: invalid token: %w", call.User, model.ErrPermissionDenied)
	}
	return nil
}

// dispatch runs one call. It returns the response and, for blob.get,
// the blob to stream back.
func (s *Server) dispatch(call *Call, in guardian.BlobSource) (*Response, guardian.BlobSource) {
	switch call.Kind {
	case CallBackupCreate, CallBackupPatch:
		if call.Backup == nil {
			return errorResponse(fmt.Errorf("%s without backup: %w", call.Kind, model.ErrDecode)), nil
		}
		var err error
		if call.Kind == CallBackupCreate {
			err = s.backups.Create(call.User, call.Backup)
		} else {
			err = s.backups.Update(call.User, call.Backup)
		}
		if err != nil {
			return errorResponse(err), nil
		}
		return &Response{Status: StatusOK}, nil

	case CallBackupGet:
		backup, err := s.backups.GetByID(call.User, call.BackupID)
		if err != nil {
			return errorResponse(err), nil
		}
		if backup == nil {
			return errorResponse(fmt.Errorf("%s: %w", call.BackupID, model.ErrBackupNotFound)), nil
		}
		return &Response{Status: StatusOK, Backup: backup}, nil

	case CallBackupList:
		backups, err := s.backups.GetAll(call.User)
		if err != nil {
			return errorResponse(err), nil
		}
		return &Response{Status: StatusOK, Backups: backups}, nil
	}

	if call.Blob == nil {
		return errorResponse(fmt.Errorf("%s without blob ref: %w", call.Kind, model.ErrDecode)), nil
	}
	ref := *call.Blob
	if ref.Owner != call.User {
		return errorResponse(fmt.Errorf("blob %s is not owned by %s: %w", ref, call.User, model.ErrPermissionDenied)), nil
	}

	switch call.Kind {
	case CallBlobCreate:
		if err := s.blobs.Insert(ref, in); err != nil {
			return errorResponse(err), nil
		}
		return &Response{Status: StatusOK}, nil

	case CallBlobGet:
		src, err := s.blobs.Fetch(ref)
		if err != nil {
			return errorResponse(err), nil
		}
		return &Response{Status: StatusOK}, src

	case CallBlobDelete:
		if err := s.blobs.Delete(ref); err != nil {
			return errorResponse(err), nil
		}
		return &Response{Status: StatusOK}, nil

	case CallBlobExists:
		checker, ok := s.blobs.(existenceChecker)
		if !ok {
			return errorResponse(fmt.Errorf("blob existence check: %w", model.ErrUnsupported)), nil
		}
		exists, err := checker.Has(ref)
		if err != nil {
			return errorResponse(err), nil
		}
		return &Response{Status: StatusOK, Exists: exists}, nil

	default:
		return errorResponse(fmt.Errorf("unknown call %q: %w", call.Kind, model.ErrUnsupported)), nil
	}
}
