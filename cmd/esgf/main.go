/*
Copyright © 2026 the esgf authors.
This file is part of esgf.

esgf is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

esgf is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with esgf.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command esgf is a command-line interface for searching, downloading and
// opening climate data of the Earth System Grid Federation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/bopen/esgf/esgfutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := esgfutil.Root.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(-1)
	}
}
