package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-auth-client/authorization"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Message}}</p></body></html>`))

// callbackReceiver listens on a loopback redirect URI and hands every redirect it receives
// to the login command. More than one can arrive when an old browser tab is reused.
type callbackReceiver struct {
	server   *http.Server
	listener net.Listener
	results  chan authorization.CallbackParameters
	errs     chan error
}

func newCallbackReceiver(redirectURI string) (*callbackReceiver, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect URI: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URI %q is not a loopback http URI", redirectURI)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("redirect URI %q is not a loopback http URI", redirectURI)
	}

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener on %s: %w", u.Host, err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	r := &callbackReceiver{
		listener: listener,
		results:  make(chan authorization.CallbackParameters, 4),
		errs:     make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, r.handle)
	r.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case r.errs <- err:
			default:
			}
		}
	}()
	return r, nil
}

func (r *callbackReceiver) handle(w http.ResponseWriter, req *http.Request) {
	params, err := authorization.CallbackParametersFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := map[string]string{
		"Title":   "Sign-in received",
		"Message": "You can close this window and return to the terminal.",
	}
	if params.Error != "" {
		page["Title"] = "Sign-in failed"
		page["Message"] = params.Error + ": " + params.ErrorDescription
	}
	_ = callbackPage.Execute(w, page)

	select {
	case r.results <- params:
	default:
	}
}

// wait returns the next redirect, or Cancelled when ctx ends first.
func (r *callbackReceiver) wait(ctx context.Context) (authorization.CallbackParameters, error) {
	select {
	case params := <-r.results:
		return params, nil
	case err := <-r.errs:
		return authorization.CallbackParameters{}, err
	case <-ctx.Done():
		return authorization.CallbackParameters{Cancelled: true}, nil
	}
}

func (r *callbackReceiver) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.server.Shutdown(ctx)
}
