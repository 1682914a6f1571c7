// Package impersonate makes HTTP GET and POST requests that look like they come from a real
// browser by running curl-impersonate, then reads curl's verbose trace back into a
// models.Response.
//
// A request goes through these steps, in this order: the options are validated, a binary is
// picked for the platform and target, the target's preset headers and flags are merged into a
// copy of the options, and the command line is built. The command then runs and its stderr is
// parsed. Every step up to the run happens in Prepare, and MakeRequest does all of them.
//
//	client, err := impersonate.NewClient("https://example.com", models.RequestOptions{
//	    Method:      models.MethodGet,
//	    Impersonate: models.TargetChrome110,
//	})
//	if err != nil {
//	    return err
//	}
//	resp, err := client.MakeRequest(ctx, "")
//
// Binaries are looked up in the directory set by RequestOptions.BinaryOverridePath, then in
// $CURL_IMPERSONATE_BINARY_PATH, then in a bin directory next to the executable.
package impersonate
