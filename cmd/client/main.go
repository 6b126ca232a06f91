package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/tcpchat/internal/client"
)

func main() {
	var (
		host = flag.String("host", "127.0.0.1", "Chat server address")
		port = flag.Int("port", 55555, "Chat server port")
		name = flag.String("name", "", "Username (prompted when empty)")
	)
	flag.Parse()

	if err := run(net.JoinHostPort(*host, strconv.Itoa(*port)), *name, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "chat client:", err)
		os.Exit(1)
	}
}

func run(addr, username string, in io.Reader, out io.Writer) error {
	input := bufio.NewScanner(in)
	if strings.TrimSpace(username) == "" {
		fmt.Fprint(out, "Please enter your name: ")
		if !input.Scan() {
			return errors.New("no username given")
		}
		username = strings.TrimSpace(input.Text())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, addr, username)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := c.ReadMessage(0)
			if msg != "" {
				fmt.Fprintln(out, msg)
			}
			if err != nil {
				return
			}
		}
	}()

	for input.Scan() {
		text := input.Text()
		if strings.EqualFold(strings.TrimSpace(text), client.ExitCommand) {
			break
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := c.Send(text); err != nil {
			fmt.Fprintln(out, "Disconnected from the server.")
			_ = c.Close()
			<-done
			return nil
		}
	}

	fmt.Fprintln(out, "Disconnecting from the server...")
	// The server may already be gone; leaving is best effort.
	_ = c.Leave()
	<-done
	return nil
}
