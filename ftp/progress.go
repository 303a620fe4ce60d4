package ftp

import "io"

// ProgressReader reports the running byte count of reads from Reader.
//
//	pr := &ftp.ProgressReader{
//	    Reader: f,
//	    Callback: func(n int64) { fmt.Printf("\r%d bytes sent", n) },
//	}
//	_, err := client.Store("bgm/title.ogg", pr)
type ProgressReader struct {
	Reader   io.Reader
	Callback func(transferred int64)

	total int64
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.total += int64(n)
		if pr.Callback != nil {
			pr.Callback(pr.total)
		}
	}
	return n, err
}

// ProgressWriter reports the running byte count of writes to Writer.
type ProgressWriter struct {
	Writer   io.Writer
	Callback func(transferred int64)

	total int64
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	if n > 0 {
		pw.total += int64(n)
		if pw.Callback != nil {
			pw.Callback(pw.total)
		}
	}
	return n, err
}
