// Package soundftp is a synchronous FTP session for tools that keep files
// on a remote device, such as game soundtracks on a console.
//
// A Session wraps one control connection from the ftp package. Every
// operation blocks until the server has answered, returns an error whose
// kind can be tested with errors.Is, and leaves exactly one line in the
// session's OperationLog.
//
// # Basic Usage
//
//	s := soundftp.New(soundftp.WithTimeout(10 * time.Second))
//	if err := s.Connect("192.168.1.20", "user", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Disconnect()
//
//	if err := s.ChangeWorkingDirectory("/bgm"); err != nil {
//	    log.Fatal(err)
//	}
//	files, err := s.ListFiles("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, f := range files {
//	    fmt.Println(f.Name, f.Size, f.ModifiedDate())
//	}
//
// # Errors
//
//	data, err := s.Download("title.ogg")
//	switch {
//	case errors.Is(err, soundftp.ErrNotFound):
//	    // no such file
//	case errors.Is(err, soundftp.ErrTransfer):
//	    // data connection failed; data is nil
//	}
//
// # Operation Log
//
// The log is the human-readable trail of everything the session tried:
//
//	s.Log().WriteTo(os.Stderr)
//
// With WithLogger each entry is also written to a *slog.Logger.
package soundftp
