package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// LoaderScript generates the client-side reassembly helper published
// alongside manifests: a small script that fetches the manifest, maps
// ranges to chunks, and streams slices through a ReadableStream. Output is
// deterministic for a given content base so a prior publication can be
// revalidated by hash alone.
func LoaderScript(contentBase string) []byte {
	return []byte(fmt.Sprintf(`// ordsite chunk loader
const BASE = %q;

async function manifest(url) {
  const res = await fetch(url);
  if (!res.ok) throw new Error("manifest " + url + ": " + res.status);
  return res.json();
}

function slicesFor(m, start, end) {
  const out = [];
  let off = 0;
  for (const c of m.chunks) {
    const cs = off, ce = off + c.size - 1;
    off += c.size;
    if (ce < start) continue;
    if (cs > end) break;
    out.push({
      chunk: c,
      from: start > cs ? start - cs : 0,
      to: end < ce ? end - cs : c.size - 1,
    });
  }
  return out;
}

async function* stream(m, start, end) {
  for (const s of slicesFor(m, start, end)) {
    const res = await fetch(BASE + "/" + s.chunk.outpoint);
    if (!res.ok) throw new Error("chunk " + s.chunk.index + ": " + res.status);
    const buf = new Uint8Array(await res.arrayBuffer());
    yield buf.subarray(s.from, s.to + 1);
  }
}

export async function load(manifestUrl, start, end) {
  const m = await manifest(manifestUrl);
  if (start === undefined) { start = 0; end = m.totalSize - 1; }
  const it = stream(m, start, end);
  return new ReadableStream({
    async pull(controller) {
      const { value, done } = await it.next();
      if (done) controller.close();
      else controller.enqueue(value);
    },
  });
}
`, contentBase))
}

// LoaderHash is the content hash the cache analyzer compares against a
// previously published helper.
func LoaderHash(contentBase string) string {
	sum := sha256.Sum256(LoaderScript(contentBase))
	return hex.EncodeToString(sum[:])
}
