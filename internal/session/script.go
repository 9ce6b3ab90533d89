package session

import (
	"encoding/json"
	"fmt"
)

// extractionScript reads cookies, both storages and named window globals and
// posts them back tagged with the request id.
const extractionScript = `(function () {
  var requestId = %s;
  var tokenKeys = %s;
  function post(msg) {
    var data = JSON.stringify(msg);
    if (window.ReactNativeWebView) { window.ReactNativeWebView.postMessage(data); }
    else if (window.chrome && window.chrome.webview) { window.chrome.webview.postMessage(data); }
    else { window.parent.postMessage(data, "*"); }
  }
  function dump(store) {
    var out = {};
    try {
      for (var i = 0; i < store.length; i++) { var k = store.key(i); out[k] = String(store.getItem(k)); }
    } catch (e) {}
    return out;
  }
  try {
    var local = dump(window.localStorage);
    var session = dump(window.sessionStorage);
    var tokens = {};
    tokenKeys.forEach(function (k) {
      var v = local[k] || session[k];
      if (!v && typeof window[k] === "string") { v = window[k]; }
      if (v) { tokens[k] = v; }
    });
    post({
      type: "sessionExtracted",
      requestId: requestId,
      cookies: document.cookie,
      localStorage: local,
      sessionStorage: session,
      tokens: tokens,
      url: window.location.href
    });
  } catch (e) {
    post({ type: "scriptError", requestId: requestId, error: String((e && e.message) || e) });
  }
})();`

// ExtractionScript renders the script for one extraction request.
func ExtractionScript(requestID string, tokenKeys []string) string {
	if tokenKeys == nil {
		tokenKeys = []string{}
	}
	id, _ := json.Marshal(requestID)
	keys, _ := json.Marshal(tokenKeys)
	return fmt.Sprintf(extractionScript, id, keys)
}
