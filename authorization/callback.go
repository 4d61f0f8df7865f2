package authorization

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/oauthmodel"
)

// CallbackParameters are the values delivered on the redirect URI, or a cancellation
// reported by the UI when the user dismissed the interactive step.
type CallbackParameters struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
	Cancelled        bool
}

func callbackFromValues(v url.Values) CallbackParameters {
	return CallbackParameters{
		State:            v.Get(oauthmodel.ParamState),
		Code:             v.Get(oauthmodel.ParamCode),
		Error:            v.Get(oauthmodel.ParamError),
		ErrorDescription: v.Get(oauthmodel.ParamErrorDescription),
	}
}

// CallbackParametersFromURL reads the query, or the fragment when the provider used
// response_mode=fragment.
func CallbackParametersFromURL(u *url.URL) (CallbackParameters, error) {
	q := u.Query()
	if q.Get(oauthmodel.ParamState) == "" && u.Fragment != "" {
		fragment, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return CallbackParameters{}, fmt.Errorf("parse callback fragment: %w", err)
		}
		q = fragment
	}
	return callbackFromValues(q), nil
}

// CallbackParametersFromRequest reads a redirect delivered to a local HTTP listener, in
// query or form_post mode.
func CallbackParametersFromRequest(r *http.Request) (CallbackParameters, error) {
	if err := r.ParseForm(); err != nil {
		return CallbackParameters{}, fmt.Errorf("parse callback request: %w", err)
	}
	return callbackFromValues(r.Form), nil
}
