// Package ftp is a small FTP client engine: one control connection with
// strictly alternating commands and replies, and a transient data
// connection per transfer or listing.
//
// # Basic Usage
//
//	client, err := ftp.Dial("192.168.1.20:21", ftp.WithTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("user", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//
//	var buf bytes.Buffer
//	if _, err := client.Retrieve("bgm/title.ogg", &buf); err != nil {
//	    log.Fatal(err)
//	}
//
// # Data Connections
//
// Passive mode is the default: EPSV is tried first and, once a server
// answers it with 502, PASV is used for the rest of the session.
// WithActiveMode switches to PORT (EPRT on IPv6).
//
// # Errors
//
// Failures are classified by kind:
//
//	if errors.Is(err, ftp.ErrNotFound) {
//	    // missing remote file
//	}
//	var pe *ftp.ProtocolError
//	if errors.As(err, &pe) {
//	    fmt.Println(pe.Code, pe.Response)
//	}
package ftp
