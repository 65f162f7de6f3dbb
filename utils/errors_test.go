// Copyright (C) 2017. See AUTHORS.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorGroup(t *testing.T) {
	var empty ErrorGroup
	empty.Add(nil)
	require.NoError(t, empty.Finalize())

	first := errors.New("first")
	var single ErrorGroup
	single.Add(first)
	single.Add(nil)
	require.Equal(t, first, single.Finalize())

	second := errors.New("second")
	var group ErrorGroup
	group.Add(first)
	group.Add(second)
	err := group.Finalize()
	require.EqualError(t, err, "first\nsecond")
	require.True(t, errors.Is(err, first))
	require.True(t, errors.Is(err, second))
}
